package state

// addIDs appends the ids that are not in list yet.
func addIDs(list []int64, ids ...int64) []int64 {
	for _, id := range ids {
		if !hasID(list, id) {
			list = append(list, id)
		}
	}
	return list
}

// removeIDs returns list without ids, keeping the order of the rest.
func removeIDs(list []int64, ids ...int64) []int64 {
	out := list[:0:0]
	for _, v := range list {
		if !hasID(ids, v) {
			out = append(out, v)
		}
	}
	return out
}

func hasID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func copyIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
