package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/mod/modfile"

	"github.com/paraita/dspot/types"
)

// packageDir locates a package inside the module rooted at workingDir and
// returns its directory together with its import path
func packageDir(pkgPath string, workingDir string) (string, string, error) {
	// Check if pkgPath is already a relative path
	if strings.HasPrefix(pkgPath, "./") || pkgPath == "." {
		relPath := strings.TrimPrefix(pkgPath, "./")
		importPath := pkgPath
		if mod, err := moduleName(workingDir); err == nil {
			importPath = path.Join(mod, relPath)
		}
		return filepath.Join(workingDir, filepath.FromSlash(relPath)), importPath, nil
	}

	mod, err := moduleName(workingDir)
	if err != nil {
		return "", "", err
	}

	// Verify that the package is indeed in the module
	if pkgPath != mod && !strings.HasPrefix(pkgPath, mod+"/") {
		return "", "", fmt.Errorf("package %s is not in module %s", pkgPath, mod)
	}
	relPath := strings.TrimPrefix(strings.TrimPrefix(pkgPath, mod), "/")
	if relPath == "" {
		relPath = "."
	}
	return filepath.Join(workingDir, filepath.FromSlash(relPath)), pkgPath, nil
}

// moduleName reads the module path from the go.mod in workingDir
func moduleName(workingDir string) (string, error) {
	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}
	return modFile.Module.Mod.Path, nil
}

// isTestName reports whether name is a test function name the go tool runs:
// "Test" followed by nothing or by a character that is not lower case
func isTestName(name string) bool {
	if !strings.HasPrefix(name, "Test") || name == "TestMain" {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len("Test"):])
	return !unicode.IsLower(r)
}

// testFile is a parsed _test.go file of a package
type testFile struct {
	name  string
	src   []byte
	fset  *token.FileSet
	file  *ast.File
	funcs []*ast.FuncDecl
}

func parseTestFiles(pkgDir string) ([]testFile, error) {
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	fset := token.NewFileSet()
	var files []testFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		src, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		f, err := parser.ParseFile(fset, filePath, src, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		tf := testFile{name: filePath, src: src, fset: fset, file: f}
		// Traverse top-level declarations in search of test functions
		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil || funcDecl.Body == nil {
				continue
			}
			if isTestName(funcDecl.Name.Name) {
				tf.funcs = append(tf.funcs, funcDecl)
			}
		}
		files = append(files, tf)
	}
	return files, nil
}

// FindTestFunctions takes a package path and working directory, and returns a list of test function names
func FindTestFunctions(pkgPath string, workingDir string) ([]string, error) {
	dir, _, err := packageDir(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}
	files, err := parseTestFiles(dir)
	if err != nil {
		return nil, err
	}

	var testFunctions []string
	for _, f := range files {
		for _, fn := range f.funcs {
			testFunctions = append(testFunctions, fn.Name.Name)
		}
	}
	return testFunctions, nil
}

// FindCandidates returns the test functions of a package as selection
// candidates, in file and source order. When match is set, only functions
// whose name matches it are returned.
func FindCandidates(pkgPath string, workingDir string, match *regexp.Regexp) ([]types.SelectionCandidate, error) {
	dir, importPath, err := packageDir(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}
	files, err := parseTestFiles(dir)
	if err != nil {
		return nil, err
	}

	var candidates []types.SelectionCandidate
	for _, f := range files {
		for _, fn := range f.funcs {
			if match != nil && !match.MatchString(fn.Name.Name) {
				continue
			}
			candidates = append(candidates, types.SelectionCandidate{
				Name:  fn.Name.Name,
				Class: importPath,
				Body:  f.body(fn),
				File:  f.name,
			})
		}
	}
	return candidates, nil
}

// body returns the source between the braces of a function
func (f testFile) body(fn *ast.FuncDecl) string {
	start := f.fset.Position(fn.Body.Lbrace).Offset + 1
	end := f.fset.Position(fn.Body.Rbrace).Offset
	if start < 0 || end > len(f.src) || start > end {
		return ""
	}
	return strings.TrimSpace(string(f.src[start:end]))
}
