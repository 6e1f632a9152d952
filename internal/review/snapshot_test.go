package review

import (
	"testing"

	"github.com/BTreeMap/precare/internal/models"
)

func TestBuildSnapshotOrderAndSkips(t *testing.T) {
	var a models.Answers
	_ = a.Put(models.StepAllergies, models.TextAnswer("No known allergies"))
	_ = a.Put(models.StepVisitReason, models.TextAnswer("chest pain for a week"))
	_ = a.Put(models.StepPatientInfo, models.PatientAnswer(models.PatientInfo{
		FullName: "John Doe", DOB: "1990-05-15", Phone: "5551234567",
	}))

	want := "Full name: John Doe\n" +
		"Date of birth: 1990-05-15\n" +
		"Phone: 5551234567\n" +
		"Reason for visit: chest pain for a week\n" +
		"Allergies: No known allergies"
	if got := BuildSnapshot(a); got != want {
		t.Errorf("BuildSnapshot() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildSnapshotEmpty(t *testing.T) {
	if got := BuildSnapshot(models.Answers{}); got != "" {
		t.Errorf("expected empty snapshot, got %q", got)
	}
}

func TestBuildSnapshotIsPure(t *testing.T) {
	var a models.Answers
	_ = a.Put(models.StepConcerns, models.TextAnswer("cost of the visit"))
	first := BuildSnapshot(a)
	second := BuildSnapshot(a)
	if first != second {
		t.Errorf("snapshot changed between calls: %q vs %q", first, second)
	}
}
