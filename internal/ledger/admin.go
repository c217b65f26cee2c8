package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func (l *Ledger) requireOwner(caller common.Address) error {
	if caller != l.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// SetEnclaveSigner rotates the address batches must be signed by.
func (l *Ledger) SetEnclaveSigner(caller, signer common.Address) error {
	var prev common.Address
	err := l.apply(func(uint64) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if signer == (common.Address{}) {
			return fmt.Errorf("%w: enclave signer", ErrZeroAddress)
		}
		prev = l.st.enclaveSigner
		l.st.journal.append(signerChange{prev: prev})
		l.st.enclaveSigner = signer
		return nil
	})
	if err != nil {
		return err
	}

	l.log.WithFields(logrus.Fields{
		"previous": prev.Hex(),
		"signer":   signer.Hex(),
	}).Warn("🔑 Enclave signer rotated")
	return nil
}

// Mint credits the in-process bank. It funds accounts and pools at bootstrap.
func (l *Ledger) Mint(caller, token, to common.Address, amount *big.Int) error {
	return l.apply(func(uint64) error {
		if err := l.requireOwner(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if to == (common.Address{}) {
			return fmt.Errorf("%w: mint recipient", ErrZeroAddress)
		}
		l.st.credit(token, to, amount)
		return nil
	})
}
