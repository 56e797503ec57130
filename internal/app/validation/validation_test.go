package validation

import (
	"errors"
	"testing"

	"github.com/habitnest/habitnest/internal/domain"
)

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(domain.Dish{Name: "", Calories: -1})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Struct() err = %v, want *ValidationError", err)
	}
	fields := map[string]string{}
	for _, f := range ve.Fields {
		fields[f.Field] = f.Reason
	}
	if fields["name"] != "is required" {
		t.Errorf("name reason = %q", fields["name"])
	}
	if fields["calories"] != "must be greater than 0" {
		t.Errorf("calories reason = %q", fields["calories"])
	}
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct(domain.Dish{Name: "pho", Calories: 450}); err != nil {
		t.Errorf("Struct() = %v, want nil", err)
	}
}

func TestVar(t *testing.T) {
	err := Var("water_goal", 0.0, "gt=0")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Var() err = %v, want ErrValidation", err)
	}
	if err := Var("sleep_time", "22:30", "datetime=15:04"); err != nil {
		t.Errorf("valid time rejected: %v", err)
	}
	if err := Var("sleep_time", "25:99", "datetime=15:04"); err == nil {
		t.Error("invalid time accepted")
	}
}

func TestJoin(t *testing.T) {
	if Join(nil, nil) != nil {
		t.Error("Join of nils should be nil")
	}
	err := Join(Var("a", 0, "gt=0"), nil, Var("b", 0, "gt=0"))
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 2 {
		t.Errorf("Join() = %v", err)
	}
}

func TestStruct_Quest(t *testing.T) {
	q := domain.Quest{ID: "x", Title: "t", Type: "weekly", TriggerType: domain.TriggerCheckin,
		TargetProgress: 1, RewardType: domain.RewardCoins, RewardAmount: 1}
	err := Struct(q)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 1 || ve.Fields[0].Field != "type" {
		t.Errorf("Struct(quest) = %v", err)
	}
}
