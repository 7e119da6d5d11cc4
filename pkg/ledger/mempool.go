package ledger

type MemPool interface {
	AddTx(*Transaction)
	Len() int
	Snapshot() []*Transaction
}

var (
	_ MemPool = (*TxMemPool)(nil)
)

// TxMemPool keeps pending transactions in arrival order. It is not safe for
// concurrent use; the ledger lock guards it.
type TxMemPool struct {
	plist []*Transaction
}

func NewTxMemPool() *TxMemPool {
	return &TxMemPool{
		plist: make([]*Transaction, 0),
	}
}

func (m *TxMemPool) Len() int {
	return len(m.plist)
}

func (m *TxMemPool) AddTx(tx *Transaction) {
	m.plist = append(m.plist, tx)
}

// Snapshot returns the pending transactions in order. The slice is a copy;
// the transactions are shared.
func (m *TxMemPool) Snapshot() []*Transaction {
	s := make([]*Transaction, len(m.plist))
	copy(s, m.plist)

	return s
}

// Remove drops the given transactions, matched by identity.
func (m *TxMemPool) Remove(txs []*Transaction) {
	drop := make(map[*Transaction]struct{}, len(txs))
	for _, t := range txs {
		drop[t] = struct{}{}
	}

	m.Filter(func(t *Transaction) bool {
		_, ok := drop[t]
		return !ok
	})
}

// Filter keeps only the transactions for which keep returns true and returns
// how many were dropped.
func (m *TxMemPool) Filter(keep func(*Transaction) bool) int {
	kept := m.plist[:0]
	for _, t := range m.plist {
		if keep(t) {
			kept = append(kept, t)
		}
	}

	dropped := len(m.plist) - len(kept)
	for i := len(kept); i < len(m.plist); i++ {
		m.plist[i] = nil
	}
	m.plist = kept

	return dropped
}
