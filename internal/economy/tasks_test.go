package economy

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestTaskReward(t *testing.T) {
	reward, ok := TaskReward("invite_friend")
	if !ok || reward != 10_000 {
		t.Fatalf("invite_friend: got %d, %v", reward, ok)
	}
	if _, ok := TaskReward("made_up_task"); ok {
		t.Fatal("unknown task resolved a reward")
	}
	if _, ok := TaskReward(""); ok {
		t.Fatal("empty task id resolved a reward")
	}
}

func TestTaskCatalogStableOrder(t *testing.T) {
	catalog := TaskCatalog()
	if len(catalog) != len(taskRewards) {
		t.Fatalf("catalog has %d entries, want %d", len(catalog), len(taskRewards))
	}
	if !sort.SliceIsSorted(catalog, func(i, j int) bool { return catalog[i].ID < catalog[j].ID }) {
		t.Fatal("catalog not sorted by id")
	}
	for _, task := range catalog {
		if task.Reward != taskRewards[task.ID] {
			t.Fatalf("task %s reward %d does not match table", task.ID, task.Reward)
		}
	}
}

// Rewards come from the catalog only; a request naming an unknown task must
// be rejected before any state is touched.
func TestCompleteTaskRejectsUnknownTask(t *testing.T) {
	s := NewService(nil, nil, nil, nil)
	if _, err := s.CompleteTask(context.Background(), "u1", "made_up_task"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("got %v, want ErrUnknownTask", err)
	}
	if _, err := s.CompleteTask(context.Background(), "u1", ""); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("empty id: got %v, want ErrUnknownTask", err)
	}
}
