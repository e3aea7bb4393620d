package transform

import "testing"

func hasEdge(edges []Edge, spec string, kind EdgeKind) bool {
	for _, e := range edges {
		if e.Specifier == spec && e.Kind == kind {
			return true
		}
	}
	return false
}

func TestExtractDependencies_NamedImport(t *testing.T) {
	edges := ExtractDependencies([]byte(`import { foo, bar as baz } from "./used";`))
	if !hasEdge(edges, "./used", KindImport) {
		t.Fatalf("expected import edge for ./used, got %+v", edges)
	}
	for _, e := range edges {
		if e.Specifier == "./used" {
			if len(e.Named) != 2 || e.Named[0] != "foo" || e.Named[1] != "bar" {
				t.Fatalf("expected named [foo bar], got %v", e.Named)
			}
		}
	}
}

func TestExtractDependencies_NamespaceImport(t *testing.T) {
	edges := ExtractDependencies([]byte(`import * as X from "./ns";`))
	for _, e := range edges {
		if e.Specifier == "./ns" && !e.Namespace {
			t.Fatalf("expected namespace edge, got %+v", e)
		}
	}
}

func TestExtractDependencies_RequireNamespace(t *testing.T) {
	edges := ExtractDependencies([]byte(`const mod = require('./leaf');`))
	found := false
	for _, e := range edges {
		if e.Specifier == "./leaf" && e.Kind == KindRequire && e.Namespace {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected namespaced require edge, got %+v", edges)
	}
}

func TestExtractDependencies_RequireDestructure(t *testing.T) {
	edges := ExtractDependencies([]byte(`const {a, b} = require('./leaf');`))
	for _, e := range edges {
		if e.Specifier == "./leaf" {
			if e.Namespace {
				t.Fatalf("destructured require should not be namespace-marked: %+v", e)
			}
			if len(e.Named) != 2 {
				t.Fatalf("expected 2 named bindings, got %v", e.Named)
			}
		}
	}
}

func TestExtractDependencies_ExportFrom(t *testing.T) {
	edges := ExtractDependencies([]byte(`export { foo } from "./other";`))
	if !hasEdge(edges, "./other", KindExportFrom) {
		t.Fatalf("expected export-from edge, got %+v", edges)
	}
}

func TestExtractDependencies_ExportStarFrom(t *testing.T) {
	edges := ExtractDependencies([]byte(`export * from "./other";`))
	for _, e := range edges {
		if e.Specifier == "./other" && !e.Namespace {
			t.Fatalf("expected namespace export-from edge, got %+v", e)
		}
	}
}

func TestExtractDependencies_DynamicImportLiteral(t *testing.T) {
	edges := ExtractDependencies([]byte(`import("./chunk").then(m => m.init());`))
	if !hasEdge(edges, "./chunk", KindDynamicImport) {
		t.Fatalf("expected dynamic import edge, got %+v", edges)
	}
}

func TestExtractDependencies_DynamicRequireEscapeHatch(t *testing.T) {
	edges := ExtractDependencies([]byte("const name = `./${id}`;\nrequire(`./${id}`);"))
	found := false
	for _, e := range edges {
		if e.Dynamic {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a dynamic escape-hatch marker, got %+v", edges)
	}
}
