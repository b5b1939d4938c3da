package notify

import "fmt"

const breakupTemplate = "💔 %s got dumped for rushing swaps! Time to reconcile on WooSwap. #DeFiEdu #Monad #WooSwap"

// FormatBreakupMessage renders the breakup announcement for address.
func FormatBreakupMessage(address string) string {
	return fmt.Sprintf(breakupTemplate, TruncateAddress(address))
}

// TruncateAddress shortens an address to its first 6 and last 4 characters.
func TruncateAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
