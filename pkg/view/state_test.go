package view

import "testing"

func TestState_NotifiesOnlyOnChange(t *testing.T) {
	s := NewState()
	var got []bool
	var sources []Source
	s.OnChange(func(visible bool, source Source) {
		got = append(got, visible)
		sources = append(sources, source)
	})

	s.Show()
	s.Show()
	s.As(SourceGate).Hide()
	s.As(SourceHost).Hide()

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("view:state_test - changes = %v", got)
	}
	if sources[0] != SourcePage || sources[1] != SourceGate {
		t.Errorf("view:state_test - sources = %v", sources)
	}
	if s.Visible() {
		t.Error("view:state_test - expected hidden")
	}
}

func TestState_StartsHidden(t *testing.T) {
	if NewState().Visible() {
		t.Error("view:state_test - new state must be hidden")
	}
}
