package decode

import "github.com/ashita-ai/kiroku/internal/value"

// StorageItem is the outcome of decoding one storage key and value. Err
// records a failure, with Keys set when only the value failed. Skipped
// items carry a placeholder Value.
type StorageItem struct {
	Pallet  string       `json:"pallet"`
	Entry   string       `json:"entry"`
	Key     []byte       `json:"key"`
	Keys    []StorageKey `json:"keys,omitempty"`
	Value   *value.Value `json:"value,omitempty"`
	Skipped string       `json:"skipped,omitempty"`
	Err     error        `json:"-"`
}

// SkippedItem returns a placeholder item for a key that was not decoded.
func SkippedItem(pallet, entry string, key []byte, reason string) StorageItem {
	v := Placeholder(reason)
	return StorageItem{Pallet: pallet, Entry: entry, Key: key, Value: &v, Skipped: reason}
}

// DecodeItem decodes one key and value. Failures are recorded on the item;
// keys matched by skip are replaced with a placeholder.
func (d *StorageDecoder) DecodeItem(pallet, entry string, key, data []byte, specVersion uint32, skip *SkipPolicy) StorageItem {
	if rule, ok := skip.Match(key, specVersion); ok {
		return SkippedItem(pallet, entry, key, rule.Reason)
	}
	item := StorageItem{Pallet: pallet, Entry: entry, Key: key}
	keys, err := d.DecodeKey(pallet, entry, key)
	if err != nil {
		item.Err = err
		return item
	}
	item.Keys = keys
	v, err := d.DecodeValue(pallet, entry, data)
	if err != nil {
		item.Err = err
		return item
	}
	item.Value = &v
	return item
}
