package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pre-computed keccak256 hashes of the canonical EIP-712 type strings.
var (
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	domainWithContractTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,uint256 timestamp,uint256 nonce)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// CTFExchangeAddress is the Polymarket exchange contract on Polygon mainnet,
// used as the verifying contract for order signatures.
const CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

// OrderPayload carries the twelve signed fields of a CLOB order. Addresses
// and large integers stay as strings to survive JSON round trips intact.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`          // 0 = BUY, 1 = SELL
	SignatureType int    `json:"signatureType"` // 0 = EOA
}

// Signer produces the EIP-712 signatures the CLOB API requires: ClobAuth
// messages for key derivation and Order structs for placement. Domain
// separators are computed once at construction.
type Signer struct {
	privateKey     *ecdsa.PrivateKey
	address        common.Address
	authDomain     []byte
	exchangeDomain []byte
}

// NewSigner builds a Signer from a hex private key and the target chain ID
// (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.authDomain = hashDomain("ClobAuthDomain", "1", chainID, "")
	s.exchangeDomain = hashDomain("Polymarket CTF Exchange", "1", chainID, CTFExchangeAddress)
	return s, nil
}

// Address returns the wallet address derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthMessage signs the ClobAuth message used by the derive-api-key
// flow. The result is a 0x-prefixed 65-byte signature.
func (s *Signer) SignAuthMessage(address string, timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concat(
		clobAuthTypeHash,
		common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32),
		uint256(big.NewInt(timestamp)),
		uint256(big.NewInt(nonce)),
	))
	return s.signDigest(typedDataDigest(s.authDomain, structHash))
}

// SignOrder signs an order against the exchange domain.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(typedDataDigest(s.exchangeDomain, structHash))
}

func hashDomain(name, version string, chainID int, verifyingContract string) []byte {
	parts := [][]byte{
		domainTypeHash,
		ethcrypto.Keccak256([]byte(name)),
		ethcrypto.Keccak256([]byte(version)),
		uint256(big.NewInt(int64(chainID))),
	}
	if verifyingContract != "" {
		parts[0] = domainWithContractTypeHash
		parts = append(parts, common.LeftPadBytes(common.HexToAddress(verifyingContract).Bytes(), 32))
	}
	return ethcrypto.Keccak256(concat(parts...))
}

// typedDataDigest is keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataDigest(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concat([]byte{0x19, 0x01}, domainSep, structHash))
}

// signDigest signs a 32-byte digest and returns hex(r || s || v) with v
// shifted into {27,28} as EIP-712 verifiers expect.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	nums := make(map[string]*big.Int, 7)
	for field, v := range map[string]string{
		"salt":        o.Salt,
		"tokenId":     o.TokenID,
		"makerAmount": o.MakerAmount,
		"takerAmount": o.TakerAmount,
		"expiration":  o.Expiration,
		"nonce":       o.Nonce,
		"feeRateBps":  o.FeeRateBps,
	} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", field, v)
		}
		nums[field] = n
	}

	return ethcrypto.Keccak256(concat(
		orderTypeHash,
		uint256(nums["salt"]),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		uint256(nums["tokenId"]),
		uint256(nums["makerAmount"]),
		uint256(nums["takerAmount"]),
		uint256(nums["expiration"]),
		uint256(nums["nonce"]),
		uint256(nums["feeRateBps"]),
		uint256(big.NewInt(int64(o.Side))),
		uint256(big.NewInt(int64(o.SignatureType))),
	)), nil
}

// uint256 returns the 32-byte big-endian representation of n.
func uint256(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func concat(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
