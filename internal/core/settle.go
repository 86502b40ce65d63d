package core

import "sort"

// DustThresholdMinor is the balance magnitude at or below which a user is
// left out of settlement planning entirely.
const DustThresholdMinor = 1

type party struct {
	userID string
	amount int64 // remaining magnitude, always positive
}

// GenerateSettlePlan computes a small list of directed transfers that drives
// every balance to within ±1 minor unit of zero.
//
// Greedy largest-to-largest matching: the biggest debtor pays the biggest
// creditor as much as either side allows, and a side drops out once its
// remainder falls to dust. At most n−1 transfers for n non-dust participants.
// Not proven globally minimal for every distribution, but O(n log n) and
// deterministic: equal magnitudes are ordered by ascending userID.
func GenerateSettlePlan(balances []Balance) []Transfer {
	var debtors, creditors []party
	for _, b := range balances {
		switch {
		case b.NetMinor < -DustThresholdMinor:
			debtors = append(debtors, party{userID: b.UserID, amount: -b.NetMinor})
		case b.NetMinor > DustThresholdMinor:
			creditors = append(creditors, party{userID: b.UserID, amount: b.NetMinor})
		}
	}

	byMagnitude := func(ps []party) func(i, j int) bool {
		return func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].userID < ps[j].userID
		}
	}
	sort.Slice(debtors, byMagnitude(debtors))
	sort.Slice(creditors, byMagnitude(creditors))

	var transfers []Transfer
	for len(debtors) > 0 && len(creditors) > 0 {
		debtor := &debtors[0]
		creditor := &creditors[0]

		amount := min(debtor.amount, creditor.amount)
		transfers = append(transfers, Transfer{
			From:        debtor.userID,
			To:          creditor.userID,
			AmountMinor: amount,
		})

		debtor.amount -= amount
		creditor.amount -= amount

		if debtor.amount <= DustThresholdMinor {
			debtors = debtors[1:]
		}
		if creditor.amount <= DustThresholdMinor {
			creditors = creditors[1:]
		}
	}

	return transfers
}

// ApplyTransfers returns the balances after executing the transfers, for
// verification: every result should be within the dust threshold of zero
// when the transfers come from GenerateSettlePlan.
func ApplyTransfers(balances []Balance, transfers []Transfer) []Balance {
	nets := make(map[string]int64, len(balances))
	for _, b := range balances {
		nets[b.UserID] = b.NetMinor
	}
	for _, t := range transfers {
		nets[t.From] += t.AmountMinor
		nets[t.To] -= t.AmountMinor
	}

	out := make([]Balance, 0, len(nets))
	for uid, net := range nets {
		out = append(out, Balance{UserID: uid, NetMinor: net})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
