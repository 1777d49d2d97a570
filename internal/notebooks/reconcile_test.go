package notebooks

import (
	"errors"
	"net/url"
	"testing"

	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gorm.io/datatypes"
)

func idOf(value int64) *int64 {
	return &value
}

func storedBlock(id int64, position int, content string) repository.Block {
	return repository.Block{
		ID:         id,
		NotebookID: 1,
		Content:    content,
		Type:       repository.BlockTypeMarkdown,
		Position:   position,
		Metadata:   datatypes.JSON("null"),
	}
}

func TestPlanReconciliationIsMinimal(t *testing.T) {
	current := []repository.Block{storedBlock(1, 0, "a"), storedBlock(2, 1, "b")}
	desired := []DesiredBlock{
		{ID: idOf(1), Content: "a", Type: repository.BlockTypeMarkdown, Position: 0},
		{Content: "c", Type: repository.BlockTypeMarkdown, Position: 1},
	}

	plan, err := PlanReconciliation(current, desired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := ReconciliationPlan{
		Create: []repository.NewBlock{{
			Content:  "c",
			Type:     repository.BlockTypeMarkdown,
			Position: 1,
			Metadata: datatypes.JSON("null"),
		}},
		Delete: []int64{2},
	}
	if diff := cmp.Diff(expected, plan, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("unexpected plan (-want +got):\n%s", diff)
	}
}

func TestPlanReconciliationEmptyDesiredDeletesEverything(t *testing.T) {
	current := []repository.Block{storedBlock(1, 0, "a"), storedBlock(2, 1, "b")}

	plan, err := PlanReconciliation(current, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Create) != 0 || len(plan.Update) != 0 {
		t.Fatalf("expected deletions only, got %+v", plan)
	}
	if diff := cmp.Diff([]int64{1, 2}, plan.Delete); diff != "" {
		t.Fatalf("unexpected deletions (-want +got):\n%s", diff)
	}
}

func TestPlanReconciliationEmptyCurrentCreatesEverything(t *testing.T) {
	desired := []DesiredBlock{
		{Content: "a", Type: repository.BlockTypeMarkdown, Position: 0},
		{ID: idOf(42), Content: "b", Type: repository.BlockTypeSQL, Position: 1},
	}

	plan, err := PlanReconciliation(nil, desired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Create) != 2 || len(plan.Update) != 0 || len(plan.Delete) != 0 {
		t.Fatalf("expected two creations, got %+v", plan)
	}
	if plan.Create[1].Type != repository.BlockTypeSQL {
		t.Fatalf("expected unknown identifier to be created with its fields, got %+v", plan.Create[1])
	}
}

func TestPlanReconciliationDetectsFieldChanges(t *testing.T) {
	base := storedBlock(7, 2, "select 1")
	base.Type = repository.BlockTypeSQL
	base.Metadata = datatypes.JSON(`{"chart":{"type":"bar","x":"day"}}`)

	cases := []struct {
		name    string
		desired DesiredBlock
		changed bool
	}{
		{
			name:    "unchanged with reordered keys",
			desired: DesiredBlock{ID: idOf(7), Content: "select 1", Type: "sql", Position: 2, Metadata: datatypes.JSON(`{"chart":{"x":"day","type":"bar"}}`)},
			changed: false,
		},
		{
			name:    "content",
			desired: DesiredBlock{ID: idOf(7), Content: "select 2", Type: "sql", Position: 2, Metadata: base.Metadata},
			changed: true,
		},
		{
			name:    "position",
			desired: DesiredBlock{ID: idOf(7), Content: "select 1", Type: "sql", Position: 0, Metadata: base.Metadata},
			changed: true,
		},
		{
			name:    "pinned",
			desired: DesiredBlock{ID: idOf(7), Content: "select 1", Type: "sql", Position: 2, Pinned: true, Metadata: base.Metadata},
			changed: true,
		},
		{
			name:    "type",
			desired: DesiredBlock{ID: idOf(7), Content: "select 1", Type: "markdown", Position: 2, Metadata: base.Metadata},
			changed: true,
		},
		{
			name:    "metadata only",
			desired: DesiredBlock{ID: idOf(7), Content: "select 1", Type: "sql", Position: 2, Metadata: datatypes.JSON(`{"chart":{"type":"line","x":"day"}}`)},
			changed: true,
		},
		{
			name:    "metadata removed",
			desired: DesiredBlock{ID: idOf(7), Content: "select 1", Type: "sql", Position: 2},
			changed: true,
		},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			plan, err := PlanReconciliation([]repository.Block{base}, []DesiredBlock{testCase.desired})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(plan.Create) != 0 || len(plan.Delete) != 0 {
				t.Fatalf("expected identity to be preserved, got %+v", plan)
			}
			if testCase.changed && len(plan.Update) != 1 {
				t.Fatalf("expected one update, got %d", len(plan.Update))
			}
			if !testCase.changed && len(plan.Update) != 0 {
				t.Fatalf("expected no update, got %+v", plan.Update)
			}
		})
	}
}

func TestPlanReconciliationTreatsAbsentMetadataAsNull(t *testing.T) {
	current := []repository.Block{storedBlock(1, 0, "a")}
	for _, metadata := range []datatypes.JSON{nil, datatypes.JSON(""), datatypes.JSON("null")} {
		plan, err := PlanReconciliation(current, []DesiredBlock{
			{ID: idOf(1), Content: "a", Type: repository.BlockTypeMarkdown, Position: 0, Metadata: metadata},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !plan.Empty() {
			t.Fatalf("expected empty plan for metadata %q, got %+v", string(metadata), plan)
		}
	}
}

func TestPlanReconciliationRepeatedIdentifierCreatesCopy(t *testing.T) {
	current := []repository.Block{storedBlock(1, 0, "a")}
	desired := []DesiredBlock{
		{ID: idOf(1), Content: "a", Type: repository.BlockTypeMarkdown, Position: 0},
		{ID: idOf(1), Content: "a", Type: repository.BlockTypeMarkdown, Position: 1},
	}

	plan, err := PlanReconciliation(current, desired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Update) != 0 || len(plan.Delete) != 0 || len(plan.Create) != 1 {
		t.Fatalf("expected a single creation, got %+v", plan)
	}
	if plan.Create[0].Position != 1 {
		t.Fatalf("expected the second occurrence to be created, got %+v", plan.Create[0])
	}
}

func TestPlanReconciliationRejectsInvalidBlocks(t *testing.T) {
	_, err := PlanReconciliation(nil, []DesiredBlock{{Content: "x", Type: "python"}})
	if !errors.Is(err, repository.ErrInvalidBlockType) {
		t.Fatalf("expected invalid block type, got %v", err)
	}

	_, err = PlanReconciliation(nil, []DesiredBlock{{Content: "x", Type: "sql", Metadata: datatypes.JSON("{")}})
	if !errors.Is(err, repository.ErrInvalidBlock) {
		t.Fatalf("expected invalid block, got %v", err)
	}
}

func TestParseSearchExtractsTags(t *testing.T) {
	text, tags := ParseSearch("  revenue #sql report #q3  ")
	if text != "revenue report" {
		t.Fatalf("unexpected text %q", text)
	}
	if diff := cmp.Diff([]string{"sql", "q3"}, tags); diff != "" {
		t.Fatalf("unexpected tags (-want +got):\n%s", diff)
	}

	text, tags = ParseSearch("plain")
	if text != "plain" || len(tags) != 0 {
		t.Fatalf("unexpected parse result %q %v", text, tags)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		title    string
		expected string
	}{
		{title: "  My First\tNotebook ", expected: "my-first-notebook"},
		{title: "Sales Q1/Q2", expected: "sales-q1-q2"},
		{title: "What? #1", expected: "what-1"},
		{title: "50% off", expected: "50-off"},
		{title: "Crème brûlée", expected: "cr-me-br-l-e"},
		{title: "--Already-Dashed--", expected: "already-dashed"},
		{title: "日本語", expected: "notebook"},
		{title: "?#%/", expected: "notebook"},
	}
	for _, testCase := range cases {
		got := Slugify(testCase.title)
		if got != testCase.expected {
			t.Fatalf("%q: expected slug %q, got %q", testCase.title, testCase.expected, got)
		}
		if escaped := url.PathEscape(got); escaped != got {
			t.Fatalf("%q: slug %q is not path safe", testCase.title, got)
		}
		if !repository.ValidSlug(got) {
			t.Fatalf("%q: slug %q rejected by repository", testCase.title, got)
		}
	}
}
