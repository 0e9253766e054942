package utils

import (
	"context"
	"testing"
)

func TestContextIdentityRoundTrips(t *testing.T) {
	ctx := context.Background()

	if _, ok := GetBusinessIdFromContext(ctx); ok {
		t.Fatal("empty context should not carry a business id")
	}

	ctx = SetBusinessIdInContext(ctx, "biz-1")
	ctx = SetUserIdInContext(ctx, 42)
	ctx = SetUserNameInContext(ctx, "Aye Chan")
	ctx = SetCorrelationIdInContext(ctx, "corr-7")

	if v, ok := GetBusinessIdFromContext(ctx); !ok || v != "biz-1" {
		t.Fatalf("business id round trip failed: %q %v", v, ok)
	}
	if v, ok := GetUserIdFromContext(ctx); !ok || v != 42 {
		t.Fatalf("user id round trip failed: %d %v", v, ok)
	}
	if v, ok := GetUserNameFromContext(ctx); !ok || v != "Aye Chan" {
		t.Fatalf("user name round trip failed: %q %v", v, ok)
	}
	if v, ok := GetCorrelationIdFromContext(ctx); !ok || v != "corr-7" {
		t.Fatalf("correlation id round trip failed: %q %v", v, ok)
	}
}

func TestContextScopeFlags(t *testing.T) {
	ctx := context.Background()

	// Absent flags must read as unset, not as false-with-ok.
	if _, ok := GetIsAdminFromContext(ctx); ok {
		t.Fatal("admin flag should be unset on an empty context")
	}
	if _, ok := GetSkipTenantScopeFromContext(ctx); ok {
		t.Fatal("skip flag should be unset on an empty context")
	}

	ctx = SetIsAdminInContext(ctx, true)
	if v, ok := GetIsAdminFromContext(ctx); !ok || !v {
		t.Fatalf("admin flag round trip failed: %v %v", v, ok)
	}

	ctx = SetSkipTenantScopeInContext(ctx, true)
	if v, ok := GetSkipTenantScopeFromContext(ctx); !ok || !v {
		t.Fatalf("skip flag round trip failed: %v %v", v, ok)
	}
}
