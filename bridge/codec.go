// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"encoding/binary"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// Wire layout (all integers big-endian):
//
//	version(1) kind(1) sourceChain(4) destChain(4) nonce(8) sender(20)
//	KindTransfer: recipient(20) amount(32) flags(1)
//	              [targetContract(20) payloadLen(4) payload]
//	KindBatch:    count(2) count x (recipient(20) amount(32))
//
// Field order is fixed; decoding is strict about lengths.
const codecVersion byte = 1

const (
	flagHasCall     byte = 1 << 0
	flagAutoExecute byte = 1 << 1
)

const (
	headerLen   = 1 + 1 + 4 + 4 + 8 + 20
	transferLen = 20 + 32 + 1
	callLen     = 20 + 4
	entryLen    = 20 + 32
)

// MaxCallPayload bounds the composable payload so a hostile message cannot
// force unbounded allocation on decode.
const MaxCallPayload = 64 * 1024

// Encode serializes a message. Amounts must fit in 256 bits.
func Encode(m *Message) ([]byte, error) {
	buf := make([]byte, 0, headerLen+transferLen)
	buf = append(buf, codecVersion, m.Kind)
	buf = binary.BigEndian.AppendUint32(buf, m.SourceChain)
	buf = binary.BigEndian.AppendUint32(buf, m.DestChain)
	buf = binary.BigEndian.AppendUint64(buf, m.Nonce)
	buf = append(buf, m.Sender.Bytes()...)

	switch m.Kind {
	case KindTransfer:
		amt, err := packAmount(m.Amount)
		if err != nil {
			return nil, err
		}
		buf = append(buf, m.Recipient.Bytes()...)
		buf = append(buf, amt[:]...)

		var flags byte
		if len(m.CallPayload) > 0 || m.TargetContract != (common.Address{}) {
			flags |= flagHasCall
			if m.AutoExecute {
				flags |= flagAutoExecute
			}
		}
		buf = append(buf, flags)
		if flags&flagHasCall != 0 {
			if len(m.CallPayload) > MaxCallPayload {
				return nil, ErrInvalidMessage
			}
			buf = append(buf, m.TargetContract.Bytes()...)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.CallPayload)))
			buf = append(buf, m.CallPayload...)
		}

	case KindBatch:
		if len(m.Recipients) == 0 || len(m.Recipients) != len(m.Amounts) ||
			len(m.Recipients) > 0xFFFF {
			return nil, ErrInvalidMessage
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Recipients)))
		for i, rcpt := range m.Recipients {
			amt, err := packAmount(m.Amounts[i])
			if err != nil {
				return nil, err
			}
			buf = append(buf, rcpt.Bytes()...)
			buf = append(buf, amt[:]...)
		}

	default:
		return nil, ErrInvalidMessage
	}
	return buf, nil
}

// Decode parses a wire payload back into a message.
func Decode(payload []byte) (*Message, error) {
	if len(payload) < headerLen {
		return nil, ErrInvalidMessage
	}
	if payload[0] != codecVersion {
		return nil, ErrInvalidMessage
	}

	m := &Message{Kind: payload[1]}
	m.SourceChain = binary.BigEndian.Uint32(payload[2:6])
	m.DestChain = binary.BigEndian.Uint32(payload[6:10])
	m.Nonce = binary.BigEndian.Uint64(payload[10:18])
	m.Sender = common.BytesToAddress(payload[18:38])
	rest := payload[headerLen:]

	switch m.Kind {
	case KindTransfer:
		if len(rest) < transferLen {
			return nil, ErrInvalidMessage
		}
		m.Recipient = common.BytesToAddress(rest[:20])
		m.Amount = unpackAmount(rest[20:52])
		flags := rest[52]
		rest = rest[transferLen:]

		if flags&flagHasCall != 0 {
			if len(rest) < callLen {
				return nil, ErrInvalidMessage
			}
			m.TargetContract = common.BytesToAddress(rest[:20])
			plen := binary.BigEndian.Uint32(rest[20:24])
			rest = rest[callLen:]
			if plen > MaxCallPayload || uint32(len(rest)) != plen {
				return nil, ErrInvalidMessage
			}
			m.CallPayload = append([]byte(nil), rest...)
			m.AutoExecute = flags&flagAutoExecute != 0
		} else if len(rest) != 0 {
			return nil, ErrInvalidMessage
		}

	case KindBatch:
		if len(rest) < 2 {
			return nil, ErrInvalidMessage
		}
		count := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if count == 0 || len(rest) != count*entryLen {
			return nil, ErrInvalidMessage
		}
		m.Recipients = make([]common.Address, count)
		m.Amounts = make([]*big.Int, count)
		for i := 0; i < count; i++ {
			m.Recipients[i] = common.BytesToAddress(rest[:20])
			m.Amounts[i] = unpackAmount(rest[20:52])
			rest = rest[entryLen:]
		}

	default:
		return nil, ErrInvalidMessage
	}
	return m, nil
}

// MessageID is the keccak256 hash of the encoded message.
func MessageID(payload []byte) common.Hash {
	return common.BytesToHash(crypto.Keccak256(payload))
}

func packAmount(amount *big.Int) ([32]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return [32]byte{}, ErrInvalidMessage
	}
	u, overflow := uint256.FromBig(amount)
	if overflow {
		return [32]byte{}, ErrAmountOverflow
	}
	return u.Bytes32(), nil
}

func unpackAmount(buf []byte) *big.Int {
	u := new(uint256.Int).SetBytes(buf)
	return u.ToBig()
}
