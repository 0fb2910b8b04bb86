package architecture_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDomainNotDependOnInfrastructure ensures the domain layer stays free
// of transport and storage concerns
func TestDomainNotDependOnInfrastructure(t *testing.T) {
	forbiddenImports := []string{
		"database/sql",
		"github.com/lib/pq",
		"github.com/jackc/pgx",
		"github.com/redis/go-redis",
		"net/http",
		"google.golang.org/grpc",
		"github.com/gorilla/websocket",
	}

	domainFiles, err := filepath.Glob("../../internal/domain/*/*.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(domainFiles) == 0 {
		t.Fatal("no domain files found")
	}

	for _, file := range domainFiles {
		if strings.Contains(file, "_test.go") {
			continue
		}

		for _, imp := range getFileImports(file) {
			for _, forbidden := range forbiddenImports {
				if strings.Contains(imp, forbidden) {
					t.Errorf("Domain file %s imports infrastructure: %s", file, imp)
				}
			}
		}
	}
}

// TestDomainNotDependOnServices ensures dependencies point inward: the
// analytics engine depends on the domain, never the reverse
func TestDomainNotDependOnServices(t *testing.T) {
	domainFiles, err := filepath.Glob("../../internal/domain/*/*.go")
	if err != nil {
		t.Fatal(err)
	}

	for _, file := range domainFiles {
		for _, imp := range getFileImports(file) {
			if strings.Contains(imp, "internal/service") ||
				strings.Contains(imp, "internal/infrastructure") ||
				strings.Contains(imp, "internal/api") {
				t.Errorf("Domain file %s imports outer layer: %s", file, imp)
			}
		}
	}
}

// TestValueObjectsAreImmutable ensures value objects don't have setters
func TestValueObjectsAreImmutable(t *testing.T) {
	valueFiles, err := filepath.Glob("../../internal/domain/values/*.go")
	if err != nil {
		t.Fatal(err)
	}

	for _, file := range valueFiles {
		if strings.Contains(file, "_test.go") {
			continue
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, file, nil, parser.ParseComments)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", file, err)
			continue
		}

		ast.Inspect(node, func(n ast.Node) bool {
			if fn, ok := n.(*ast.FuncDecl); ok {
				if fn.Recv != nil && strings.HasPrefix(fn.Name.Name, "Set") {
					t.Errorf("Value object in %s has setter method: %s", file, fn.Name.Name)
				}
			}
			return true
		})
	}
}

// TestReportingEngineNotDependOnTransport keeps the analytics engine
// reusable from both the API server and the batch CLI
func TestReportingEngineNotDependOnTransport(t *testing.T) {
	files, err := filepath.Glob("../../internal/service/reporting/*.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no reporting files found")
	}

	for _, file := range files {
		if strings.Contains(file, "_test.go") {
			continue
		}

		for _, imp := range getFileImports(file) {
			if strings.Contains(imp, "internal/api") ||
				strings.Contains(imp, "internal/infrastructure") ||
				strings.Contains(imp, "net/http") {
				t.Errorf("Reporting file %s imports transport or infrastructure: %s", file, imp)
			}
		}
	}
}

func getFileImports(filename string) []string {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil
	}

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, content, parser.ImportsOnly)
	if err != nil {
		return nil
	}

	var imports []string
	for _, imp := range node.Imports {
		if imp.Path != nil {
			imports = append(imports, strings.Trim(imp.Path.Value, `"`))
		}
	}
	return imports
}
