package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/types"
)

// ExecuteRelease pays a matured release from custody to its stealth address.
// Anyone may call it.
func (l *Ledger) ExecuteRelease(id common.Hash) (*types.PendingRelease, error) {
	var out *types.PendingRelease
	err := l.apply(func(now uint64) error {
		r, ok := l.st.releases[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrReleaseNotFound, id.Hex())
		}
		if r.Executed {
			return fmt.Errorf("%w: %s", ErrReleaseAlreadyExecuted, id.Hex())
		}
		if now < r.ReleaseTime {
			return fmt.Errorf("%w: %s matures at %d, now %d", ErrReleaseNotReady, id.Hex(), r.ReleaseTime, now)
		}

		if err := l.st.Transfer(r.Token, l.custody, r.StealthAddress, r.Amount); err != nil {
			return err
		}
		l.st.markReleaseExecuted(r, now)

		out = r.Clone()
		l.emit(now, types.LedgerEvent{Type: types.EventReleaseExecuted, Release: r.Clone()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"release_id": id.Hex(),
		"intent_id":  out.IntentID.Hex(),
	}).Info("💸 Release executed")
	return out, nil
}
