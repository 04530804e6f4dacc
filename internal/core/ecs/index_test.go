package ecs

import "testing"

func TestOwnerIndexNoOps(t *testing.T) {
	x := NewOwnerIndex()

	x.Add(Unowned, 5)
	if x.Owned() != 0 || x.CountOf(Unowned) != 0 {
		t.Fatal("sentinel owner was indexed")
	}
	if x.Remove(3, 5) {
		t.Fatal("removing a missing mapping reported success")
	}
	if x.Remove(Unowned, 5) {
		t.Fatal("removing from sentinel reported success")
	}

	x.Add(3, 5)
	x.Add(3, 5)
	if x.CountOf(3) != 1 {
		t.Fatalf("duplicate add counted twice: %d", x.CountOf(3))
	}
	if x.Remove(3, 6) {
		t.Fatal("removed non-member")
	}
	if !x.Remove(3, 5) || x.CountOf(3) != 0 {
		t.Fatal("remove of member failed")
	}
}

func TestOwnerIndexOrderAndOwners(t *testing.T) {
	x := NewOwnerIndex()
	for _, id := range []EntityID{9, 2, 7, 4} {
		x.Add(2, id)
	}
	x.Add(5, 1)

	got := x.EntitiesOf(2)
	want := []EntityID{2, 4, 7, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EntitiesOf(2) = %v, want %v", got, want)
		}
	}
	owners := x.Owners()
	if len(owners) != 2 || owners[0] != 2 || owners[1] != 5 {
		t.Fatalf("Owners = %v", owners)
	}
	cp := x.AppendEntitiesOf(nil, 2)
	cp[0] = 100
	if x.EntitiesOf(2)[0] != 2 {
		t.Fatal("AppendEntitiesOf aliased the bucket")
	}
	if x.EntitiesOf(40) != nil {
		t.Fatal("unknown owner returned a bucket")
	}
}
