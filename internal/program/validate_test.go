package program

import "testing"

type fakeLookup struct {
	users  map[string][2]uint32
	groups map[string]uint32
	supp   map[uint32][]uint32
}

func (f fakeLookup) LookupUser(name string) (uint32, uint32, error) {
	v, ok := f.users[name]
	if !ok {
		return 0, 0, errNotFound
	}
	return v[0], v[1], nil
}

func (f fakeLookup) LookupGroup(name string) (uint32, error) {
	v, ok := f.groups[name]
	if !ok {
		return 0, errNotFound
	}
	return v, nil
}

func (f fakeLookup) SupplementaryGroups(uid uint32) ([]uint32, error) {
	return f.supp[uid], nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func TestResolveHostIdentitiesByName(t *testing.T) {
	lookup := fakeLookup{
		users:  map[string][2]uint32{"app": {1000, 1000}},
		groups: map[string]uint32{},
		supp:   map[uint32][]uint32{1000: {1000, 27}},
	}
	rec := &Record{Name: "svc", Path: "/bin/true", UserName: "app"}
	if err := rec.ResolveHostIdentities(lookup); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.UID != 1000 || rec.GID != 1000 {
		t.Fatalf("unexpected uid/gid: %d/%d", rec.UID, rec.GID)
	}
	if len(rec.SupplementaryGroups) != 2 {
		t.Fatalf("expected supplementary groups, got %v", rec.SupplementaryGroups)
	}
}

func TestResolveHostIdentitiesUnknownUser(t *testing.T) {
	lookup := fakeLookup{users: map[string][2]uint32{}, groups: map[string]uint32{}, supp: map[uint32][]uint32{}}
	rec := &Record{Name: "svc", Path: "/bin/true", UserName: "ghost"}
	if err := rec.ResolveHostIdentities(lookup); err == nil {
		t.Fatalf("expected ValidationError for unknown user")
	}
}

func TestResolveHostIdentitiesUnknownCapability(t *testing.T) {
	lookup := fakeLookup{supp: map[uint32][]uint32{0: nil}}
	rec := &Record{Name: "svc", Path: "/bin/true", Capabilities: []string{"CAP_MADE_UP"}}
	if err := rec.ResolveHostIdentities(lookup); err == nil {
		t.Fatalf("expected ValidationError for unknown capability")
	}
}

func TestResolveHostIdentitiesMissingPath(t *testing.T) {
	lookup := fakeLookup{supp: map[uint32][]uint32{0: nil}}
	rec := &Record{Name: "svc"}
	if err := rec.ResolveHostIdentities(lookup); err == nil {
		t.Fatalf("expected ValidationError for missing path")
	}
}
