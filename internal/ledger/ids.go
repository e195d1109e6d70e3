package ledger

import "fmt"

// Event ids are derived from on-chain data only. The log index is the
// record's position in its transaction's decoded log, which is fixed once the
// transaction is finalized.

func transferID(prefix, signature string, logIndex int) string {
	return fmt.Sprintf("%s-%s-%d", prefix, signature, logIndex)
}

func depositID(signature string, logIndex int) string {
	return transferID("deposit", signature, logIndex)
}

func withdrawID(signature string, logIndex int) string {
	return transferID("withdraw", signature, logIndex)
}

func perpDepositID(signature string, logIndex int) string {
	return transferID("perp-deposit", signature, logIndex)
}

func perpWithdrawID(signature string, logIndex int) string {
	return transferID("perp-withdraw", signature, logIndex)
}

func fundingID(signature string, logIndex int) string {
	return transferID("funding", signature, logIndex)
}

func spotFillID(signature string, logIndex int) string {
	return transferID("fill-spot", signature, logIndex)
}

func perpFillID(signature string, logIndex int) string {
	return transferID("fill-perp", signature, logIndex)
}

func takerFillID(signature string, orderID uint64) string {
	return fmt.Sprintf("fill-taker-%s-%d", signature, orderID)
}
