// internal/service/delivery/domain/delivery_test.go
package domain

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

func newTestDelivery(t *testing.T) *Delivery {
	t.Helper()
	delivery, err := NewDelivery("order-1", "1 Main St", "Alice", "+1-555-0100", "",
		[]OrderItem{{ProductID: "p-1", Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return delivery
}

func TestNewDeliveryValidation(t *testing.T) {
	items := []OrderItem{{ProductID: "p-1", Quantity: 1}}
	cases := []struct {
		name    string
		orderID string
		address string
		phone   string
		items   []OrderItem
		wantErr bool
	}{
		{"valid", "order-1", "1 Main St", "+1 (555) 010-0100", items, false},
		{"empty order id", "", "1 Main St", "", items, true},
		{"empty address", "order-1", "", "", items, true},
		{"no items", "order-1", "1 Main St", "", nil, true},
		{"zero quantity item", "order-1", "1 Main St", "", []OrderItem{{ProductID: "p-1", Quantity: 0}}, true},
		{"empty product id", "order-1", "1 Main St", "", []OrderItem{{Quantity: 1}}, true},
		{"bad phone", "order-1", "1 Main St", "not-a-phone", items, true},
		{"empty phone ok", "order-1", "1 Main St", "", items, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delivery, err := NewDelivery(tc.orderID, tc.address, "Alice", tc.phone, "", tc.items, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", delivery)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if delivery.Status != StatusPending {
				t.Errorf("status = %s, want pending", delivery.Status)
			}
			if delivery.TrackingNumber != "" {
				t.Errorf("tracking number must not be allocated at creation, got %q", delivery.TrackingNumber)
			}
		})
	}
}

var trackingFormat = regexp.MustCompile(`^DEL-\d{8}-\d{4}$`)

func TestGenerateTrackingNumberFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		tn := GenerateTrackingNumber()
		if !trackingFormat.MatchString(tn) {
			t.Fatalf("tracking number %q does not match DEL-YYYYMMDD-NNNN", tn)
		}
	}
}

func TestTransitionRules(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusShipped, true}, // 允许跳过中间状态
		{StatusConfirmed, StatusPacked, true},
		{StatusShipped, StatusInTransit, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusShipped, StatusShipped, true}, // 原地重放
		{StatusShipped, StatusConfirmed, false},
		{StatusDelivered, StatusShipped, false},
		{StatusDelivered, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusReturned, StatusConfirmed, false},
		{StatusInTransit, StatusFailed, true},
		{StatusPending, StatusReturned, true},
		{StatusPending, Status("bogus"), false},
	}
	for _, tc := range cases {
		err := Transition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Errorf("Transition(%s, %s) = %v, want nil", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Transition(%s, %s) = nil, want error", tc.from, tc.to)
		}
	}
}

func TestTransitionErrorIsTyped(t *testing.T) {
	err := Transition(StatusDelivered, StatusShipped)
	var transitionErr *TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestApplyStatusSignalsTrackingAllocation(t *testing.T) {
	delivery := newTestDelivery(t)

	needsTracking, err := delivery.ApplyStatus(StatusConfirmed, "", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !needsTracking {
		t.Error("first entry into confirmed must request tracking allocation")
	}

	// 已分配运单号后再发货，不能重新分配
	delivery.TrackingNumber = "DEL-20260831-0042"
	needsTracking, err = delivery.ApplyStatus(StatusShipped, "", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if needsTracking {
		t.Error("tracking number must never be regenerated once allocated")
	}
}

func TestApplyStatusStampsActualDeliveryOnce(t *testing.T) {
	delivery := newTestDelivery(t)
	delivery.Status = StatusOutForDelivery

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if _, err := delivery.ApplyStatus(StatusDelivered, "left at door", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivery.ActualDelivery == nil || !delivery.ActualDelivery.Equal(now) {
		t.Errorf("actual delivery = %v, want %v", delivery.ActualDelivery, now)
	}
	if delivery.Notes != "left at door" {
		t.Errorf("notes = %q", delivery.Notes)
	}
}

func TestApplyStatusRejectsTerminalExit(t *testing.T) {
	delivery := newTestDelivery(t)
	delivery.Status = StatusDelivered

	if _, err := delivery.ApplyStatus(StatusShipped, "", time.Now()); err == nil {
		t.Fatal("expected terminal state to reject further transitions")
	}
}

func TestStatusClassification(t *testing.T) {
	if !StatusDelivered.IsCompleted() || !StatusFailed.IsCompleted() || !StatusReturned.IsCompleted() {
		t.Error("delivered, failed, returned must be terminal")
	}
	if StatusPending.IsCompleted() {
		t.Error("pending is not terminal")
	}
	if !StatusInTransit.IsInProgress() {
		t.Error("in_transit is in progress")
	}
	if StatusPending.IsInProgress() || StatusDelivered.IsInProgress() {
		t.Error("pending and delivered are not in progress")
	}
}
