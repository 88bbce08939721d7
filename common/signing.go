package common

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

const EthSignatureLength = crypto.SignatureLength

// EthSign signs keccak256(payload) with the given hex private key and returns the
// message hash and the 65-byte recoverable signature.
func EthSign(privateKeyHex string, payload []byte) (Hash, []byte, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return Hash{}, nil, fmt.Errorf("error converting private key: %v", err)
	}
	return EthSignWithKey(privateKey, payload)
}

func EthSignWithKey(privateKey *ecdsa.PrivateKey, payload []byte) (Hash, []byte, error) {
	messageHash := Keccak256(payload)
	signature, err := crypto.Sign(messageHash.Bytes(), privateKey)
	if err != nil {
		return Hash{}, nil, fmt.Errorf("error signing the hash: %v", err)
	}
	return messageHash, signature, nil
}

// RecoverEthAddress recovers the signer address of a 65-byte signature over messageHash.
// Both the 0/1 and the 27/28 recovery id conventions are accepted.
func RecoverEthAddress(messageHash Hash, signature []byte) (Address, error) {
	if len(signature) != EthSignatureLength {
		return Address{}, fmt.Errorf("signature length %d, want %d", len(signature), EthSignatureLength)
	}
	sig := make([]byte, EthSignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(messageHash.Bytes(), sig)
	if err != nil {
		return Address{}, errors.New("error recovering public key from signature")
	}
	return Address(crypto.PubkeyToAddress(*pub)), nil
}

// VerifyEthSignature checks that signature over messageHash was produced by address.
func VerifyEthSignature(address Address, messageHash Hash, signature []byte) error {
	recovered, err := RecoverEthAddress(messageHash, signature)
	if err != nil {
		return err
	}
	if recovered != address {
		return errors.New("public key does not match")
	}
	return nil
}

func PubkeyToAddress(pub ecdsa.PublicKey) Address {
	return Address(crypto.PubkeyToAddress(pub))
}
