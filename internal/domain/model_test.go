package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComposition(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		want  Composition
	}{
		{"empty", nil, CompositionEmpty},
		{"kitchen only", []Role{RoleKitchen, RoleKitchen}, CompositionKitchenOnly},
		{"floor only", []Role{RoleFloor}, CompositionFloorOnly},
		{"hybrid", []Role{RoleKitchen, RoleFloor}, CompositionHybrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{}
			for _, r := range tt.roles {
				o.Items = append(o.Items, OrderItem{Role: r, Quantity: 1, Price: 1})
			}
			assert.Equal(t, tt.want, o.Composition())
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	for _, s := range []Status{StatusPending, StatusPreparing, StatusReady, StatusAssigned} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestEntryOfClaimant(t *testing.T) {
	k, f := "chef-1", "waiter-1"
	o := &Order{
		ID:              "o1",
		Status:          StatusPreparing,
		KitchenClaimant: &k,
		FloorClaimant:   &f,
		CreatedAt:       time.Now(),
		Items:           []OrderItem{{Role: RoleKitchen}},
	}

	e := EntryOf(o)
	assert.Equal(t, &k, e.Claimant)
	assert.Equal(t, 1, e.ItemCount)

	o.Status = StatusAssigned
	assert.Equal(t, &f, EntryOf(o).Claimant)

	o.Status = StatusPending
	assert.Nil(t, EntryOf(o).Claimant)
}

func TestViewOfClaimant(t *testing.T) {
	k := "chef-1"
	o := &Order{ID: "o1", Status: StatusPreparing, KitchenClaimant: &k}
	assert.Equal(t, &k, ViewOf(o).Claimant)

	o.Status = StatusPending
	assert.Nil(t, ViewOf(o).Claimant)
}

func TestCustomerGroup(t *testing.T) {
	assert.Equal(t, "customer:c-42", CustomerGroup("c-42"))
}
