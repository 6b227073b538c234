package models

import "strings"

type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

func ParseNetwork(s string) (Network, bool) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case Testnet:
		return Testnet, true
	case Mainnet:
		return Mainnet, true
	}
	return "", false
}

func (n Network) String() string { return string(n) }
