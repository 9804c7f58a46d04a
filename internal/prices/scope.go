package prices

import "github.com/mbd888/bazaar/internal/plan"

// scopeKeys maps each restricted scope to the snapshot keys it may see.
// "all" is intentionally absent; it passes the snapshot through unfiltered.
var scopeKeys = map[plan.Scope][]string{
	plan.ScopeCurrency: {
		"usd", "eur", "gbp", "chf", "cad", "aud", "sek", "nok", "rub", "thb",
		"sgd", "hkd", "azn", "amd", "dkk", "aed", "jpy", "try", "cny", "sar",
		"inr", "myr", "afn", "kwd", "iqd", "bhd", "omr", "qar",
	},
	plan.ScopeCrypto: {"bitcoin"},
	plan.ScopeGold: {
		"gold_ounce", "gold_gram_18k", "gold_mithqal", "coin_emami",
		"coin_azadi", "coin_half", "coin_quarter", "coin_gram",
	},
}

// Filter returns the subset of data a scope is entitled to. "all" and the
// empty scope are identity. An unknown scope yields an empty map rather
// than leaking everything.
func Filter(data map[string]any, scope plan.Scope) map[string]any {
	if scope == plan.ScopeAll || scope == "" {
		return data
	}

	keys := scopeKeys[scope]
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out
}
