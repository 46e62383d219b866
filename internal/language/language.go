// Package language is the registry of tagged variants for source-language
// adapters (§9): compile_argv, source_extensions, run_argv per language,
// keyed by name, replacing the source's dynamic-import language plugins.
package language

import "fmt"

// Language is the capability interface a task type drives to compile and
// run a contestant's submission (§9).
type Language interface {
	Name() string
	SourceExtensions() []string
	CompileArgv(sources []string, exeName string) []string
	RunArgv(exeName string) []string
}

var registry = map[string]Language{}

// Register adds a language to the registry; panics on duplicate names.
func Register(l Language) {
	if _, exists := registry[l.Name()]; exists {
		panic(fmt.Sprintf("language: duplicate registration for %q", l.Name()))
	}
	registry[l.Name()] = l
}

// Get looks up a language by name (Contest.Languages, Submission.Language).
func Get(name string) (Language, error) {
	l, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("language: unknown language %q", name)
	}
	return l, nil
}

func init() {
	Register(cLanguage{})
	Register(cppLanguage{})
	Register(pythonLanguage{})
}

type cLanguage struct{}

func (cLanguage) Name() string               { return "c" }
func (cLanguage) SourceExtensions() []string { return []string{".c"} }
func (cLanguage) CompileArgv(sources []string, exeName string) []string {
	argv := append([]string{"gcc", "-O2", "-static", "-o", exeName}, sources...)
	return argv
}
func (cLanguage) RunArgv(exeName string) []string { return []string{"./" + exeName} }

type cppLanguage struct{}

func (cppLanguage) Name() string               { return "cpp" }
func (cppLanguage) SourceExtensions() []string { return []string{".cpp", ".cc"} }
func (cppLanguage) CompileArgv(sources []string, exeName string) []string {
	argv := append([]string{"g++", "-O2", "-static", "-std=gnu++17", "-o", exeName}, sources...)
	return argv
}
func (cppLanguage) RunArgv(exeName string) []string { return []string{"./" + exeName} }

type pythonLanguage struct{}

func (pythonLanguage) Name() string               { return "python3" }
func (pythonLanguage) SourceExtensions() []string { return []string{".py"} }
func (pythonLanguage) CompileArgv(sources []string, exeName string) []string {
	// Interpreted: "compilation" only byte-compiles to catch syntax errors.
	return append([]string{"python3", "-m", "py_compile"}, sources...)
}
func (pythonLanguage) RunArgv(exeName string) []string { return []string{"python3", exeName} }
