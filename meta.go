package refine

// CombineMeta merges query metadata for one fetch. Precedence, highest last:
// the resource's default meta, then the deprecated legacy map, then the
// explicit map. The merge is shallow; the merged map is what flows to key
// derivation, the live subscription and the provider, there is no separate
// legacy field downstream.
func CombineMeta(resourceDefault, legacy, explicit map[string]any) map[string]any {
	merged := make(map[string]any, len(resourceDefault)+len(legacy)+len(explicit))
	for k, v := range resourceDefault {
		merged[k] = v
	}
	for k, v := range legacy {
		merged[k] = v
	}
	for k, v := range explicit {
		merged[k] = v
	}
	return merged
}
