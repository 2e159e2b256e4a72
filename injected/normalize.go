package injected

// SubmittedTxID is the sentinel transaction identifier reported when a
// provider signals success without an extractable id.
const SubmittedTxID = "submitted"

// NormalizeAddresses reduces a heterogeneous provider response to a plain
// address list. Supported shapes: a bare array of strings, an object keyed
// by accounts/addresses/wallets, and an array of objects each carrying an
// address/account/addr field. Unrecognized shapes normalize to nil. Each
// shape extractor returns nil on a mismatch; the first non-empty result
// wins.
func NormalizeAddresses(v any) []string {
	for _, extract := range []func(any) []string{
		addressesFromStrings,
		addressesFromKeyedObject,
		addressesFromObjectList,
	} {
		if addrs := extract(v); len(addrs) > 0 {
			return addrs
		}
	}
	return nil
}

func addressesFromStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return nonEmpty(list)
	case []any:
		var addrs []string
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			addrs = append(addrs, s)
		}
		return nonEmpty(addrs)
	}
	return nil
}

func addressesFromKeyedObject(v any) []string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	for _, field := range []string{"accounts", "addresses", "wallets"} {
		if inner, ok := obj[field]; ok {
			if addrs := NormalizeAddresses(inner); len(addrs) > 0 {
				return addrs
			}
		}
	}
	return nil
}

func addressesFromObjectList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var addrs []string
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		for _, field := range []string{"address", "account", "addr"} {
			if s, ok := obj[field].(string); ok && s != "" {
				addrs = append(addrs, s)
				break
			}
		}
	}
	return nonEmpty(addrs)
}

func nonEmpty(addrs []string) []string {
	out := addrs[:0]
	for _, a := range addrs {
		if a != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// txIDExtractor recognizes one observed shape of a take-offer result.
type txIDExtractor func(v any) (string, bool)

var txIDExtractors = []txIDExtractor{
	txIDFromString,
	txIDFromKeyedObject,
}

// NormalizeTxID reduces a heterogeneous take-offer result to a transaction
// identifier, defaulting to SubmittedTxID when none is extractable. A
// provider that returned without error did submit something; an opaque
// result must not read as failure.
func NormalizeTxID(v any) string {
	for _, extract := range txIDExtractors {
		if id, ok := extract(v); ok {
			return id
		}
	}
	return SubmittedTxID
}

func txIDFromString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

func txIDFromKeyedObject(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	for _, field := range []string{"id", "txId", "txid", "hash"} {
		if s, ok := obj[field].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// ExtractOfferParam pulls the serialized offer document out of take-offer
// params: a bare string, an object with an offer field, or a singleton array
// of either. Returns "" when no offer string is present.
func ExtractOfferParam(params any) string {
	switch p := params.(type) {
	case string:
		return p
	case map[string]any:
		if s, ok := p["offer"].(string); ok {
			return s
		}
	case []any:
		if len(p) == 1 {
			return ExtractOfferParam(p[0])
		}
	case []string:
		if len(p) == 1 {
			return p[0]
		}
	}
	return ""
}
