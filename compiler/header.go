package compiler

// builtinHeader is the text of the built-in header, ending in a
// `#line 1 "module.c"` directive. Its exact text is a published ABI:
// additions are a compatible change, removals or renames are not. This
// package's parser does not read it (it handles only the C subset in
// parser.go), so it is not prepended to user source; New binds the libc
// and runtime names listed below as resolved symbols instead, and
// diagnostics carry the user's own line numbers.
const builtinHeader = `
/* fixed-width integer aliases, selected for the host's data model */
typedef signed char int8_t;
typedef unsigned char uint8_t;
typedef short int16_t;
typedef unsigned short uint16_t;
typedef int int32_t;
typedef unsigned int uint32_t;
typedef long long int64_t;
typedef unsigned long long uint64_t;
#if defined(__LP64__)
typedef unsigned long size_t;
typedef long ssize_t;
#elif defined(__LLP64__)
typedef unsigned long long size_t;
typedef long long ssize_t;
#else
typedef unsigned int size_t;
typedef int ssize_t;
#endif

/* curated C standard library subset */
size_t strlen (const char * s);
int strcmp (const char * a, const char * b);
char * strstr (const char * haystack, const char * needle);
char * strchr (const char * s, int c);
char * strrchr (const char * s, int c);
void * memcpy (void * dst, const void * src, size_t n);
void * memmove (void * dst, const void * src, size_t n);
int puts (const char * s);
int fprintf (void * stream, const char * fmt, ...);
int printf (const char * fmt, ...);
int fputs (const char * s, void * stream);
int fflush (void * stream);
extern void * stdout;
extern void * stderr;

/* allocation and string helpers from the host runtime */
void * gum_malloc (size_t n);
void * gum_calloc (size_t count, size_t n);
void gum_free (void * mem);
char * gum_strdup (const char * s);

/* threading primitives */
typedef void * GumThreadId;
GumThreadId gum_thread_new (void * (* fn) (void *), void * data);
void gum_thread_join (GumThreadId thread);
void gum_thread_ref (GumThreadId thread);
void gum_thread_unref (GumThreadId thread);
void gum_thread_yield (void);

typedef struct _GumMutex { void * opaque; } GumMutex;
void gum_mutex_init (GumMutex * mutex);
void gum_mutex_clear (GumMutex * mutex);
void gum_mutex_lock (GumMutex * mutex);
void gum_mutex_unlock (GumMutex * mutex);
int gum_mutex_trylock (GumMutex * mutex);

typedef struct _GumCond { void * opaque; } GumCond;
void gum_cond_init (GumCond * cond);
void gum_cond_clear (GumCond * cond);
void gum_cond_wait (GumCond * cond, GumMutex * mutex);
void gum_cond_signal (GumCond * cond);
void gum_cond_broadcast (GumCond * cond);

int gum_atomic_int_add (int * val, int delta);
void * gum_atomic_pointer_add (void ** val, ssize_t delta);

/* canonical CpuContext, one struct per supported architecture */
#if defined(GUM_ARCH_X86_64)
typedef struct _GumCpuContext
{
  uint64_t rip;
  uint64_t r15, r14, r13, r12, r11, r10, r9, r8;
  uint64_t rdi, rsi, rbp, rsp, rbx, rdx, rcx, rax;
} GumCpuContext;
#elif defined(GUM_ARCH_X86)
typedef struct _GumCpuContext
{
  uint32_t eip;
  uint32_t edi, esi, ebp, esp, ebx, edx, ecx, eax;
} GumCpuContext;
#elif defined(GUM_ARCH_ARM64)
typedef struct _GumCpuContext
{
  uint64_t pc, sp;
  uint64_t x[29];
  uint64_t fp, lr;
  uint8_t v[128];
} GumCpuContext;
#elif defined(GUM_ARCH_ARM)
typedef struct _GumCpuContext
{
  uint32_t cpsr, pc, sp;
  uint32_t r8, r9, r10, r11, r12;
  uint32_t r[8];
  uint32_t lr;
} GumCpuContext;
#elif defined(GUM_ARCH_MIPS)
typedef struct _GumCpuContext
{
  uint64_t pc, gp, sp, fp, ra, hi, lo, at;
  uint64_t v[2], a[4], t[10], s[8], k[2];
} GumCpuContext;
#endif

/* invocation-context accessors, part of the ABI even though the
 * interceptor subsystem they describe is out of scope for this core. */
typedef struct _GumInvocationContext GumInvocationContext;

void * gum_invocation_context_get_nth_argument (GumInvocationContext * ctx, uint32_t n);
void gum_invocation_context_replace_nth_argument (GumInvocationContext * ctx, uint32_t n, void * value);
void * gum_invocation_context_get_return_value (GumInvocationContext * ctx);
void gum_invocation_context_replace_return_value (GumInvocationContext * ctx, void * value);
void * gum_invocation_context_get_return_address (GumInvocationContext * ctx);
GumThreadId gum_invocation_context_get_thread_id (GumInvocationContext * ctx);
uint32_t gum_invocation_context_get_depth (GumInvocationContext * ctx);
void * gum_invocation_context_get_listener_thread_data (GumInvocationContext * ctx, size_t required_size);
void * gum_invocation_context_get_listener_function_data (GumInvocationContext * ctx);
void * gum_invocation_context_get_listener_invocation_data (GumInvocationContext * ctx, size_t required_size);
void * gum_invocation_context_get_replacement_data (GumInvocationContext * ctx);

#line 1 "module.c"
`

// builtinSymbols lists every name the header above declares that must be
// bound as a resolved address before Link. Names are grouped by how this
// package resolves them.
var (
	// builtinLibcSymbols are resolved via libc.go's dynamic symbol lookup.
	builtinLibcSymbols = []string{
		"strlen", "strcmp", "strstr", "strchr", "strrchr",
		"memcpy", "memmove",
		"puts", "fprintf", "printf", "fputs", "fflush",
		"stdout", "stderr",
	}

	// builtinRuntimeSymbols are resolved to Go-implemented shims exposed
	// through purego callbacks (libc.go's runtimeShim table).
	builtinRuntimeSymbols = []string{
		"gum_malloc", "gum_calloc", "gum_free", "gum_strdup",
		"gum_thread_new", "gum_thread_join", "gum_thread_ref", "gum_thread_unref", "gum_thread_yield",
		"gum_mutex_init", "gum_mutex_clear", "gum_mutex_lock", "gum_mutex_unlock", "gum_mutex_trylock",
		"gum_cond_init", "gum_cond_clear", "gum_cond_wait", "gum_cond_signal", "gum_cond_broadcast",
		"gum_atomic_int_add", "gum_atomic_pointer_add",
	}
)

// AssertBuiltinsBound is a test helper that callers can run once per
// process to catch a built-in accidentally left unregistered.
func AssertBuiltinsBound() []string {
	var missing []string
	for _, name := range builtinLibcSymbols {
		if _, ok := resolveLibcSymbol(name); !ok {
			missing = append(missing, name)
		}
	}
	for _, name := range builtinRuntimeSymbols {
		if _, ok := runtimeShims[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
