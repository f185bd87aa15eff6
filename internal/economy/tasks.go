package economy

import "sort"

// Task rewards are fixed server-side; completion requests only name the task
// and the reward is looked up here, never taken from the client.
var taskRewards = map[string]int64{
	"join_telegram":     5_000,
	"follow_x":          5_000,
	"subscribe_youtube": 7_500,
	"invite_friend":     10_000,
	"first_trade":       15_000,
	"verify_kyc":        20_000,
}

type TaskInfo struct {
	ID     string `json:"id"`
	Reward int64  `json:"reward"`
}

// TaskReward resolves a task's fixed reward.
func TaskReward(taskID string) (int64, bool) {
	reward, ok := taskRewards[taskID]
	return reward, ok
}

// TaskCatalog lists all known tasks in stable order.
func TaskCatalog() []TaskInfo {
	out := make([]TaskInfo, 0, len(taskRewards))
	for id, reward := range taskRewards {
		out = append(out, TaskInfo{ID: id, Reward: reward})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
