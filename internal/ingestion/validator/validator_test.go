package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion"
)

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T(%v), want *ValidationError", err, err)
	}
	return verr.Fields
}

func TestValidateTransactionRequest(t *testing.T) {
	valid := ingestion.TransactionRequest{
		Dataset: "orders",
		Group:   "g1",
		Item:    "whole milk",
		Date:    "15-03-2015",
	}
	if err := Validate(&valid); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	noDate := valid
	noDate.Date = ""
	if err := Validate(&noDate); err != nil {
		t.Fatalf("Validate(no date) = %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	fields := fieldsOf(t, Validate(&ingestion.TransactionRequest{}))
	for _, want := range []string{"dataset", "group", "item"} {
		if _, ok := fields[want]; !ok {
			t.Errorf("fields = %v, missing %q", fields, want)
		}
	}
	if _, ok := fields["date"]; ok {
		t.Errorf("fields = %v, date is optional and must not be flagged", fields)
	}
}

func TestValidateDateFormat(t *testing.T) {
	tests := []struct {
		name string
		date string
		ok   bool
	}{
		{"day_month_year", "15-03-2015", true},
		{"iso", "2015-03-15", false},
		{"slashes", "15/03/2015", false},
		{"nonsense", "soon", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ingestion.TransactionRequest{
				Dataset: "orders",
				Group:   "g1",
				Item:    "milk",
				Date:    tt.date,
			}
			err := Validate(&req)
			if tt.ok && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.date, err)
			}
			if !tt.ok {
				fields := fieldsOf(t, err)
				if _, flagged := fields["date"]; !flagged {
					t.Errorf("fields = %v, want date flagged", fields)
				}
			}
		})
	}
}

func TestValidateDatasetName(t *testing.T) {
	tests := []struct {
		name    string
		dataset string
		ok      bool
	}{
		{"plain", "orders", true},
		{"mixed", "Groceries_2015.v2", true},
		{"spaces", "my orders", false},
		{"glob", "orders*", false},
		{"leading_dash", "-orders", false},
		{"too_long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ingestion.TransactionRequest{
				Dataset: tt.dataset,
				Group:   "g1",
				Item:    "milk",
			}
			err := Validate(&req)
			if tt.ok && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.dataset, err)
			}
			if !tt.ok {
				fields := fieldsOf(t, err)
				if _, flagged := fields["dataset"]; !flagged {
					t.Errorf("fields = %v, want dataset flagged", fields)
				}
			}
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	valid := ingestion.BatchRequest{
		Dataset: "orders",
		Transactions: []ingestion.BatchTransaction{
			{Group: "g1", Item: "milk"},
			{Group: "g1", Item: "bread", Date: "16-03-2015"},
		},
	}
	if err := Validate(&valid); err != nil {
		t.Fatalf("Validate(valid batch) = %v", err)
	}

	empty := ingestion.BatchRequest{Dataset: "orders"}
	fields := fieldsOf(t, Validate(&empty))
	if _, ok := fields["transactions"]; !ok {
		t.Errorf("fields = %v, want transactions flagged", fields)
	}
}

func TestValidateBatchElementPath(t *testing.T) {
	req := ingestion.BatchRequest{
		Dataset: "orders",
		Transactions: []ingestion.BatchTransaction{
			{Group: "g1", Item: "milk"},
			{Group: "g1"},
		},
	}
	fields := fieldsOf(t, Validate(&req))
	if _, ok := fields["transactions[1].item"]; !ok {
		t.Errorf("fields = %v, want transactions[1].item flagged", fields)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validate(&ingestion.TransactionRequest{Dataset: "orders", Group: "g1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() == "" {
		t.Error("Error() must describe the failing fields")
	}
}
