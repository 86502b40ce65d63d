package core

import "sort"

// NetBalances reduces a set of postings into one net balance per user, with
// positive meaning the amount owed to the user. A posting debits its user, so
// the net is the negated posting sum. Postings are assumed to belong to a
// single space. The result is sorted by userID so identical ledgers always
// aggregate to identical output; as long as every event's postings sum to
// zero, the balances sum to zero too.
func NetBalances(postings []Posting) []Balance {
	nets := make(map[string]int64)
	for _, p := range postings {
		nets[p.UserID] -= p.AmountMinor
	}

	balances := make([]Balance, 0, len(nets))
	for uid, net := range nets {
		balances = append(balances, Balance{UserID: uid, NetMinor: net})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].UserID < balances[j].UserID })
	return balances
}
