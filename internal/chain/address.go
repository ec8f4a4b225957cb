package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Token2022ProgramID is the token program that owns sandglass LP mints.
var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// FindPositionAddress derives the user's sandglass account for a market.
func FindPositionAddress(market, user, programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{market[:], user[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive position address for %s: %w", user, err)
	}
	return addr, nil
}

// FindAssociatedTokenAddress derives the associated token account of wallet
// for mint under the given token program.
func FindAssociatedTokenAddress(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account for %s: %w", wallet, err)
	}
	return addr, nil
}
