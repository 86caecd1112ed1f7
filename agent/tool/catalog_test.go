package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

func stubTool(name string, caps contractx.Capability) contractx.Tool {
	return New(&schema.ToolInfo{Name: name, Desc: name}, caps, func(context.Context, map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{Output: "ok", Success: true}, nil
	})
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(stubTool("a", 0), stubTool("a", 0))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}

	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(stubTool(" ", 0)); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}
}

func TestRegistryLookupAndInfos(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(stubTool("zeta", 0), stubTool("alpha", contractx.CapWrite))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.Get(" alpha ")
	if !ok {
		t.Fatal("expected alpha to resolve")
	}
	if got.Capabilities()&contractx.CapWrite == 0 {
		t.Fatal("expected alpha to keep its write capability")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unexpected tool for unknown name")
	}

	infos := r.Infos()
	if len(infos) != 2 || infos[0].Name != "alpha" || infos[1].Name != "zeta" {
		t.Fatalf("unexpected infos order: %+v", infos)
	}
}

func TestToolRunFillsName(t *testing.T) {
	t.Parallel()

	out, err := stubTool("named", 0).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tool != "named" {
		t.Fatalf("expected tool name to be filled, got %q", out.Tool)
	}
}

func TestArgHelpers(t *testing.T) {
	t.Parallel()

	args := map[string]any{"f": float64(4), "i": 7, "s": " 12 ", "bad": "x", "name": "  v  "}
	cases := []struct {
		key  string
		want int
	}{
		{"f", 4}, {"i", 7}, {"s", 12}, {"bad", 3}, {"missing", 3},
	}
	for _, tc := range cases {
		if got := intArg(args, tc.key, 3); got != tc.want {
			t.Fatalf("intArg(%q) = %d, want %d", tc.key, got, tc.want)
		}
	}

	if got := stringArg(args, "name"); got != "v" {
		t.Fatalf("stringArg trimmed = %q", got)
	}
	if _, bad := requireString("t", args, "missing"); bad == nil || bad.Success || bad.Error != "missing is required" {
		t.Fatalf("unexpected requireString result: %+v", bad)
	}
	if v, bad := requireString("t", args, "name"); bad != nil || v != "v" {
		t.Fatalf("unexpected requireString value %q %+v", v, bad)
	}
}
