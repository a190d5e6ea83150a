package testlist

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTestFunctions(t *testing.T) {
	tests := []struct {
		name     string
		pkgPath  string
		setup    func(string) error
		expected []string
	}{
		{
			name:    "module path",
			pkgPath: "github.com/test/module/pkg",
			setup: func(dir string) error {
				goModContent := "module github.com/test/module\n\ngo 1.21\n"
				if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goModContent), 0644); err != nil {
					return err
				}
				pkgDir := filepath.Join(dir, "pkg")
				if err := os.MkdirAll(pkgDir, 0755); err != nil {
					return err
				}
				return createTestFiles(pkgDir)
			},
			expected: []string{
				"TestNormal",
				"TestAnother",
				"TestWithMain",
				"TestWithBenchmark",
			},
		},
		{
			name:    "relative path without go.mod",
			pkgPath: "./pkg",
			setup: func(dir string) error {
				pkgDir := filepath.Join(dir, "pkg")
				if err := os.MkdirAll(pkgDir, 0755); err != nil {
					return err
				}
				return createTestFiles(pkgDir)
			},
			expected: []string{
				"TestNormal",
				"TestAnother",
				"TestWithMain",
				"TestWithBenchmark",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			require.NoError(t, tt.setup(tmpDir))

			testFuncs, err := FindTestFunctions(tt.pkgPath, tmpDir)
			require.NoError(t, err)
			require.ElementsMatch(t, tt.expected, testFuncs)
		})
	}
}

func TestFindTestFunctionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		pkgPath string
		setup   func(string) error
		wantErr string
	}{
		{
			name:    "missing go.mod for module path",
			pkgPath: "github.com/test/module/pkg",
			wantErr: "failed to read go.mod",
		},
		{
			name:    "invalid go.mod",
			pkgPath: "github.com/test/module/pkg",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "go.mod"), []byte("invalid content"), 0644)
			},
			wantErr: "failed to parse go.mod",
		},
		{
			name:    "package not in module",
			pkgPath: "github.com/other/module/pkg",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module github.com/test/module\n\ngo 1.21\n"), 0644)
			},
			wantErr: "package github.com/other/module/pkg is not in module github.com/test/module",
		},
		{
			name:    "module prefix is not a path prefix",
			pkgPath: "github.com/test/modulex/pkg",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module github.com/test/module\n\ngo 1.21\n"), 0644)
			},
			wantErr: "is not in module",
		},
		{
			name:    "relative path not found",
			pkgPath: "./nonexistent",
			wantErr: "failed to read package directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.setup != nil {
				require.NoError(t, tt.setup(tmpDir))
			}

			_, err := FindTestFunctions(tt.pkgPath, tmpDir)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindCandidates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/calc\n\ngo 1.22\n"), 0644))
	pkgDir := filepath.Join(dir, "parse")
	require.NoError(t, os.MkdirAll(pkgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "a_test.go"), []byte(`package parse

import "testing"

func TestParse(t *testing.T) {
	if Parse("1") != 1 {
		t.Fatal("bad")
	}
}

func TestParse_amplified1(t *testing.T) {
	if Parse("-3") != -3 {
		t.Fatal("bad")
	}
}

func Testlowercase(t *testing.T) {}

type suite struct{}

func (suite) TestMethod(t *testing.T) {}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "b_test.go"), []byte(`package parse

import "testing"

func TestParse_amplified2(t *testing.T) { _ = Parse("0") }
`), 0644))

	all, err := FindCandidates("example.com/calc/parse", dir, nil)
	require.NoError(t, err)
	require.Len(t, all, 3, "methods and lower-case names are not tests")
	assert.Equal(t, "TestParse", all[0].Name)
	assert.Equal(t, "example.com/calc/parse", all[0].Class)
	assert.Equal(t, "if Parse(\"1\") != 1 {\n\t\tt.Fatal(\"bad\")\n\t}", all[0].Body)
	assert.Equal(t, filepath.Join(pkgDir, "a_test.go"), all[0].File)
	assert.Equal(t, `_ = Parse("0")`, all[2].Body)

	amplified, err := FindCandidates("./parse", dir, regexp.MustCompile(`_amplified\d+$`))
	require.NoError(t, err)
	require.Len(t, amplified, 2)
	assert.Equal(t, "TestParse_amplified1", amplified[0].Name)
	assert.Equal(t, "TestParse_amplified2", amplified[1].Name)
	assert.Equal(t, "example.com/calc/parse", amplified[0].Class)
}

func TestIsTestName(t *testing.T) {
	assert.True(t, isTestName("Test"))
	assert.True(t, isTestName("TestX"))
	assert.True(t, isTestName("Test_x"))
	assert.False(t, isTestName("Testx"))
	assert.False(t, isTestName("TestMain"))
	assert.False(t, isTestName("BenchmarkX"))
}

func createTestFiles(pkgDir string) error {
	testFiles := map[string]string{
		"normal_test.go": `
package pkg

func TestNormal(t *testing.T) {}
func TestAnother(t *testing.T) {}
`,
		"main_test.go": `
package pkg

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestWithMain(t *testing.T) {}
`,
		"benchmark_test.go": `
package pkg

func BenchmarkSomething(b *testing.B) {}
func TestWithBenchmark(t *testing.T) {}
`,
	}

	for filename, content := range testFiles {
		if err := os.WriteFile(filepath.Join(pkgDir, filename), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}
