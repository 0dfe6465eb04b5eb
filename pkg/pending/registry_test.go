package pending

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/morezero/wallet-bridge/pkg/envelope"
)

func okOutcome(result string) Outcome {
	env, _ := envelope.Decode(fmt.Sprintf(`{"status":"success","result":%q}`, result))
	return Outcome{Envelope: env}
}

func TestRegister_ThenResolveOnce(t *testing.T) {
	r := New()
	c, err := r.Register("a")
	if err != nil {
		t.Fatalf("pending:registry_test - Register: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("pending:registry_test - Count = %d, want 1", r.Count())
	}
	if err := r.Resolve("a", okOutcome("x")); err != nil {
		t.Fatalf("pending:registry_test - Resolve: %v", err)
	}
	out := <-c.Done()
	if s, _ := out.Envelope.Result.AsString(); s != "x" {
		t.Errorf("pending:registry_test - result = %q, want x", s)
	}
	if r.Count() != 0 {
		t.Errorf("pending:registry_test - Count after resolve = %d, want 0", r.Count())
	}
}

func TestResolve_SecondTimeFails(t *testing.T) {
	r := New()
	if _, err := r.Register("a"); err != nil {
		t.Fatalf("pending:registry_test - Register: %v", err)
	}
	if err := r.Resolve("a", okOutcome("1")); err != nil {
		t.Fatalf("pending:registry_test - first Resolve: %v", err)
	}
	err := r.Resolve("a", okOutcome("2"))
	if !errors.Is(err, ErrUnknownCallID) {
		t.Errorf("pending:registry_test - second Resolve err = %v, want ErrUnknownCallID", err)
	}
	var idErr *CallIDError
	if !errors.As(err, &idErr) || idErr.CallID != "a" {
		t.Errorf("pending:registry_test - expected CallIDError for a, got %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	if _, err := r.Register("a"); err != nil {
		t.Fatalf("pending:registry_test - Register: %v", err)
	}
	if _, err := r.Register("a"); !errors.Is(err, ErrDuplicateCallID) {
		t.Errorf("pending:registry_test - err = %v, want ErrDuplicateCallID", err)
	}
	if _, err := r.Register(""); err == nil {
		t.Error("pending:registry_test - expected error for empty id")
	}
}

func TestResolve_UnknownDoesNotAffectOthers(t *testing.T) {
	r := New()
	c, _ := r.Register("a")
	if err := r.Resolve("nope", okOutcome("z")); !errors.Is(err, ErrUnknownCallID) {
		t.Errorf("pending:registry_test - err = %v, want ErrUnknownCallID", err)
	}
	select {
	case out := <-c.Done():
		t.Fatalf("pending:registry_test - a resolved unexpectedly: %+v", out)
	default:
	}
	if r.Count() != 1 {
		t.Errorf("pending:registry_test - Count = %d, want 1", r.Count())
	}
}

func TestRemove_ThenLateResolveIsUnknown(t *testing.T) {
	r := New()
	if _, err := r.Register("a"); err != nil {
		t.Fatalf("pending:registry_test - Register: %v", err)
	}
	if !r.Remove("a") {
		t.Fatal("pending:registry_test - expected Remove to report pending")
	}
	if r.Remove("a") {
		t.Error("pending:registry_test - second Remove must report absent")
	}
	if err := r.Resolve("a", okOutcome("late")); !errors.Is(err, ErrUnknownCallID) {
		t.Errorf("pending:registry_test - err = %v, want ErrUnknownCallID", err)
	}
}

func TestCompletion_ResolveTwiceRejected(t *testing.T) {
	c := &Completion{id: "a", ch: make(chan Outcome, 1)}
	if err := c.resolve(Outcome{}); err != nil {
		t.Fatalf("pending:registry_test - first resolve: %v", err)
	}
	if err := c.resolve(Outcome{}); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("pending:registry_test - err = %v, want ErrAlreadyResolved", err)
	}
}

func TestFailAll(t *testing.T) {
	r := New()
	a, _ := r.Register("a")
	b, _ := r.Register("b")
	boom := errors.New("shutting down")
	if n := r.FailAll(boom); n != 2 {
		t.Errorf("pending:registry_test - FailAll = %d, want 2", n)
	}
	for _, c := range []*Completion{a, b} {
		if out := <-c.Done(); !errors.Is(out.Err, boom) {
			t.Errorf("pending:registry_test - %s err = %v", c.ID(), out.Err)
		}
	}
	if r.Count() != 0 {
		t.Errorf("pending:registry_test - Count = %d, want 0", r.Count())
	}
}

func TestConcurrentRegisterResolve(t *testing.T) {
	r := New()
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("call-%d", i)
			c, err := r.Register(id)
			if err != nil {
				t.Errorf("pending:registry_test - Register %s: %v", id, err)
				return
			}
			go func() {
				if err := r.Resolve(id, okOutcome(id)); err != nil {
					t.Errorf("pending:registry_test - Resolve %s: %v", id, err)
				}
			}()
			out := <-c.Done()
			if s, _ := out.Envelope.Result.AsString(); s != id {
				t.Errorf("pending:registry_test - %s got %q", id, s)
			}
		}(i)
	}
	wg.Wait()
	if r.Count() != 0 {
		t.Errorf("pending:registry_test - Count = %d, want 0", r.Count())
	}
	if ids := r.IDs(); len(ids) != 0 {
		t.Errorf("pending:registry_test - IDs = %v", ids)
	}
}
