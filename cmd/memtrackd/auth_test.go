package main

import (
	"context"
	"testing"
)

func TestContext_HasSpiffeId(t *testing.T) {
	ctx := context.Background()

	expected := "bench-runner-1"
	newCtx := injectSpiffeId(ctx, expected)
	actual := extractSpiffeIdFromTls(newCtx)

	if actual == nil {
		t.Fatalf("expected %s, got nil", expected)
	}
	if expected != *actual {
		t.Fatalf("expected %s, got %s", expected, *actual)
	}
}

func TestContext_NoPeerNoSpiffeId(t *testing.T) {
	if id := extractSpiffeIdFromTls(context.Background()); id != nil {
		t.Fatalf("expected nil, got %s", *id)
	}
}
