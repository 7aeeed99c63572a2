package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/settree/internal/settings"
)

func TestStore_SaveGetLen(t *testing.T) {
	s := New()
	ctx := context.Background()

	value := []byte("1500")
	if err := s.Save(ctx, "net/mtu", value); err != nil {
		t.Fatalf("Save: %v", err)
	}
	value[0] = '9'

	got, err := s.Get(ctx, "net/mtu")
	if err != nil || string(got) != "1500" {
		t.Errorf("Get = %q, %v; want 1500", got, err)
	}
	got[0] = 'x'
	if again, _ := s.Get(ctx, "net/mtu"); string(again) != "1500" {
		t.Error("mutating Get result changed the store")
	}

	if n, err := s.Len(ctx, "net/mtu"); err != nil || n != 4 {
		t.Errorf("Len = %d, %v; want 4", n, err)
	}
	if _, err := s.Len(ctx, "net"); !errors.Is(err, settings.ErrNotFound) {
		t.Errorf("Len(net) = %v, want ErrNotFound", err)
	}
	if s.Bytes() != 4 || s.Count() != 1 {
		t.Errorf("Bytes = %d Count = %d", s.Bytes(), s.Count())
	}
}

func TestStore_OverwriteAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.Save(ctx, "a", []byte("12345"))
	_ = s.Save(ctx, "a", []byte("1"))
	if s.Bytes() != 1 {
		t.Errorf("Bytes after overwrite = %d, want 1", s.Bytes())
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, settings.ErrNotFound) {
		t.Errorf("Get deleted = %v", err)
	}

	// An empty value deletes.
	_ = s.Save(ctx, "b", []byte("x"))
	_ = s.Save(ctx, "b", nil)
	if s.Count() != 0 || s.Bytes() != 0 {
		t.Errorf("Count = %d Bytes = %d after empty save", s.Count(), s.Bytes())
	}

	if err := s.Save(ctx, "", []byte("x")); err == nil {
		t.Error("Save with empty key succeeded")
	}
}

func TestStore_Enumerate(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"ps/val1", "ps/ss/val3", "psx", "other"} {
		_ = s.Save(ctx, k, []byte(k))
	}

	seen := map[string]string{}
	err := s.Enumerate(ctx, "ps", func(e settings.Entry) error {
		buf := make([]byte, e.Len)
		n, err := e.Read(buf)
		if err != nil {
			return err
		}
		seen[e.Key] = string(buf[:n])
		return nil
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(seen) != 3 || seen["ps/ss/val3"] != "ps/ss/val3" {
		t.Errorf("seen = %v", seen)
	}

	stop := errors.New("stop")
	calls := 0
	err = s.Enumerate(ctx, "", func(settings.Entry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Enumerate stop = %v after %d calls", err, calls)
	}
}

func TestStore_EnumerateWhileWriting(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Save(ctx, "a/1", []byte("1"))
	_ = s.Save(ctx, "a/2", []byte("2"))

	err := s.Enumerate(ctx, "a", func(e settings.Entry) error {
		return s.Save(ctx, e.Key+"/copy", []byte("c"))
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if s.Count() != 4 {
		t.Errorf("Count = %d, want 4", s.Count())
	}
}

func TestStore_EnumerateCancelled(t *testing.T) {
	s := New()
	_ = s.Save(context.Background(), "a", []byte("1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Enumerate(ctx, "", func(settings.Entry) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Enumerate = %v, want context.Canceled", err)
	}
}

func TestStore_Close(t *testing.T) {
	s := New(WithShardCount(4))
	ctx := context.Background()
	_ = s.Save(ctx, "a", []byte("1"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := s.Save(ctx, "a", []byte("1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Save after close = %v", err)
	}
	if _, err := s.Len(ctx, "a"); !errors.Is(err, ErrClosed) {
		t.Errorf("Len after close = %v", err)
	}
	if err := s.Enumerate(ctx, "", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Enumerate after close = %v", err)
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("g%d/%d", g, i)
				_ = s.Save(ctx, key, []byte("v"))
				_, _ = s.Len(ctx, key)
			}
		}(g)
	}
	wg.Wait()

	if s.Count() != 800 || s.Bytes() != 800 {
		t.Errorf("Count = %d Bytes = %d, want 800 800", s.Count(), s.Bytes())
	}
}
