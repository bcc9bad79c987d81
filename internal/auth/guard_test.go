package auth

import (
	"errors"
	"testing"
)

func TestRole_Satisfies(t *testing.T) {
	tests := []struct {
		have, need Role
		want       bool
	}{
		{RoleStaff, RoleStaff, true},
		{RoleStaff, RolePatron, true},
		{RolePatron, RolePatron, true},
		{RolePatron, RoleStaff, false},
		{Role("admin"), RolePatron, false},
		{RoleStaff, Role("admin"), false},
		{Role(""), Role(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.have)+"->"+string(tt.need), func(t *testing.T) {
			if got := tt.have.Satisfies(tt.need); got != tt.want {
				t.Errorf("%q.Satisfies(%q) = %v, want %v", tt.have, tt.need, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, in := range []string{"staff", "STAFF", " patron "} {
		if _, err := ParseRole(in); err != nil {
			t.Errorf("ParseRole(%q) error = %v", in, err)
		}
	}
	for _, in := range []string{"", "admin", "owner"} {
		if _, err := ParseRole(in); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("ParseRole(%q) error = %v, want ErrInvalidRole", in, err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	staff := &Principal{AccountID: "usr-s", Role: RoleStaff}
	patron := &Principal{AccountID: "usr-p", Role: RolePatron}

	tests := []struct {
		name     string
		p        *Principal
		required Role
		wantKind Kind
	}{
		{"no principal", nil, RolePatron, KindUnauthenticated},
		{"no principal staff route", nil, RoleStaff, KindUnauthenticated},
		{"patron on patron route", patron, RolePatron, ""},
		{"patron on staff route", patron, RoleStaff, KindForbidden},
		{"staff on patron route", staff, RolePatron, ""},
		{"staff on staff route", staff, RoleStaff, ""},
		{"unknown required role", staff, Role("root"), KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.p, tt.required)
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("Authorize() kind = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestCan(t *testing.T) {
	staff := &Principal{Role: RoleStaff}
	patron := &Principal{Role: RolePatron}

	tests := []struct {
		p        *Principal
		perm     Permission
		wantKind Kind
	}{
		{patron, PermBookRead, ""},
		{patron, PermAccountReadSelf, ""},
		{patron, PermBookWrite, KindForbidden},
		{patron, PermAccountManage, KindForbidden},
		{patron, PermAuditRead, KindForbidden},
		{staff, PermBookWrite, ""},
		{staff, PermAuditRead, ""},
		{staff, Permission("book:burn"), KindForbidden},
		{nil, PermBookRead, KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(string(tt.perm), func(t *testing.T) {
			if got := KindOf(Can(tt.p, tt.perm)); got != tt.wantKind {
				t.Errorf("Can(%v) kind = %q, want %q", tt.perm, got, tt.wantKind)
			}
		})
	}
}

func TestPermissionsForRole(t *testing.T) {
	if got := len(PermissionsForRole(RoleStaff)); got != 5 {
		t.Errorf("staff permissions = %d, want 5", got)
	}
	patron := PermissionsForRole(RolePatron)
	if len(patron) != 2 || patron[0] != PermBookRead || patron[1] != PermAccountReadSelf {
		t.Errorf("patron permissions = %v", patron)
	}
	if got := PermissionsForRole(Role("nobody")); len(got) != 0 {
		t.Errorf("unknown role permissions = %v, want none", got)
	}
}

func TestError_IsAndKindOf(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindStoreUnavailable, cause)

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Error("errors.Is should match the kind sentinel")
	}
	if errors.Is(err, ErrAccountNotFound) {
		t.Error("errors.Is must not match a different kind")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if got := KindOf(errors.Join(errors.New("ctx"), err)); got != KindStoreUnavailable {
		t.Errorf("KindOf(wrapped) = %q", got)
	}
	if KindOf(cause) != "" {
		t.Error("KindOf(plain error) should be empty")
	}
	if got := err.Error(); got != "auth: store_unavailable: boom" {
		t.Errorf("Error() = %q", got)
	}
	if KindStoreUnavailable.IsTokenFailure() || !KindExpired.IsTokenFailure() {
		t.Error("IsTokenFailure classification wrong")
	}
}
