package metadatatest

import (
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/portable"
	"github.com/ashita-ai/kiroku/internal/schema"
)

// ChainTypes defines the legacy types used by LegacyV12.
const ChainTypes = `
global:
  types:
    AccountId: "[u8; 32]"
    Balance: u128
    BlockNumber: u32
    Moment: u64
    Index: u32
    Source: AccountId
    AccountInfo:
      nonce: Index
      free: Balance
    MultiSignature:
      _enum:
        Ed25519: "[u8; 64]"
        Sr25519: "[u8; 64]"
    CheckMortality: Era
    CheckNonce: Compact<Index>
    ChargeTransactionPayment: Compact<Balance>
    hardcoded::ExtrinsicAddress: AccountId
    hardcoded::ExtrinsicSignature: MultiSignature
    hardcoded::ExtrinsicSignedExtensions: (Era, Compact<Index>, Compact<Balance>)
`

// LegacyV12 returns a small V12 runtime: System (index 0), Timestamp
// (index 2, no calls), Balances (index 5) and Utility (index 6).
func LegacyV12() *metadata.Legacy {
	return &metadata.Legacy{
		MetadataVersion: 12,
		Modules: []metadata.Module{
			{
				Name: "System",
				Storage: &metadata.Storage{Prefix: "System", Entries: []metadata.StorageEntry{
					{Name: "Account", Modifier: metadata.Default, Kind: metadata.Map, Hashers: []schema.Hasher{schema.Blake2_128Concat}, Keys: []string{"T::AccountId"}, Value: "AccountInfo", Default: make([]byte, 20)},
					{Name: "Number", Modifier: metadata.Default, Kind: metadata.Plain, Value: "T::BlockNumber", Default: []byte{0, 0, 0, 0}},
				}},
				HasCalls: true,
				Calls: []metadata.Call{
					{Name: "remark", Args: []metadata.Arg{{Name: "_remark", Type: "Vec<u8>"}}},
				},
				HasEvents: true,
				Events: []metadata.Event{
					{Name: "ExtrinsicSuccess", Args: []string{"u32"}},
				},
				Index: 0,
			},
			{
				Name: "Timestamp",
				Storage: &metadata.Storage{Prefix: "Timestamp", Entries: []metadata.StorageEntry{
					{Name: "Now", Modifier: metadata.Default, Kind: metadata.Plain, Value: "T::Moment", Default: make([]byte, 8)},
				}},
				Index: 2,
			},
			{
				Name: "Balances",
				Storage: &metadata.Storage{Prefix: "Balances", Entries: []metadata.StorageEntry{
					{Name: "Pairs", Modifier: metadata.Optional, Kind: metadata.DoubleMap, Hashers: []schema.Hasher{schema.Twox64Concat, schema.Blake2_128}, Keys: []string{"u32", "T::AccountId"}, Value: "u64", Default: []byte{}},
				}},
				HasCalls: true,
				Calls: []metadata.Call{
					{Name: "transfer", Args: []metadata.Arg{
						{Name: "dest", Type: "<T::Lookup as StaticLookup>::Source"},
						{Name: "value", Type: "Compact<T::Balance>"},
					}},
					{Name: "set_balance", Args: []metadata.Arg{
						{Name: "who", Type: "<T::Lookup as StaticLookup>::Source"},
						{Name: "new_free", Type: "Compact<T::Balance>"},
					}},
				},
				HasEvents: true,
				Events: []metadata.Event{
					{Name: "Transfer", Args: []string{"AccountId", "AccountId", "Balance"}},
				},
				Index: 5,
			},
			{
				Name:     "Utility",
				HasCalls: true,
				Calls: []metadata.Call{
					{Name: "batch", Args: []metadata.Arg{{Name: "calls", Type: "Vec<<T as Trait>::Call>"}}},
				},
				Index: 6,
			},
		},
		Extrinsic: &metadata.Extrinsic{
			Version:          4,
			SignedExtensions: []string{"CheckMortality", "CheckNonce", "ChargeTransactionPayment"},
		},
	}
}

func ptr(v uint32) *uint32 { return &v }

// Type ids of PortableTypes.
const (
	TypeU8 uint32 = iota
	TypeU32
	TypeU64
	TypeU128
	TypeBytes32
	TypeAccountID
	TypeCompactBalance
	TypeBytes
	TypeMultiAddress
	TypeMultiSignature
	TypeBytes64
	TypeBalancesCall
	TypeSystemCall
	TypeRuntimeCall
	TypeEra
	TypeCompactNonce
	TypeChargeTransactionPayment
	TypeUncheckedExtrinsic
	TypeExtra
	TypeAccountInfo
	TypePairKey
	TypeUnit
)

// PortableTypes is the type table shared by V14 and V15.
func PortableTypes() *portable.Registry {
	field := func(name string, ty uint32) portable.Field { return portable.Field{Name: name, Type: ty} }
	return portable.NewRegistry(
		portable.Type{ID: TypeU8, Def: portable.PrimitiveDef{Kind: portable.U8}},
		portable.Type{ID: TypeU32, Def: portable.PrimitiveDef{Kind: portable.U32}},
		portable.Type{ID: TypeU64, Def: portable.PrimitiveDef{Kind: portable.U64}},
		portable.Type{ID: TypeU128, Def: portable.PrimitiveDef{Kind: portable.U128}},
		portable.Type{ID: TypeBytes32, Def: portable.ArrayDef{Len: 32, Elem: TypeU8}},
		portable.Type{ID: TypeAccountID, Path: []string{"sp_core", "crypto", "AccountId32"}, Def: portable.CompositeDef{Fields: []portable.Field{{Type: TypeBytes32}}}},
		portable.Type{ID: TypeCompactBalance, Def: portable.CompactDef{Elem: TypeU128}},
		portable.Type{ID: TypeBytes, Def: portable.SequenceDef{Elem: TypeU8}},
		portable.Type{ID: TypeMultiAddress, Path: []string{"sp_runtime", "multiaddress", "MultiAddress"}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "Id", Index: 0, Fields: []portable.Field{{Type: TypeAccountID}}},
			{Name: "Raw", Index: 3, Fields: []portable.Field{{Type: TypeBytes}}},
		}}},
		portable.Type{ID: TypeMultiSignature, Path: []string{"sp_runtime", "MultiSignature"}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "Ed25519", Index: 0, Fields: []portable.Field{{Type: TypeBytes64}}},
			{Name: "Sr25519", Index: 1, Fields: []portable.Field{{Type: TypeBytes64}}},
		}}},
		portable.Type{ID: TypeBytes64, Def: portable.ArrayDef{Len: 64, Elem: TypeU8}},
		portable.Type{ID: TypeBalancesCall, Path: []string{"pallet_balances", "pallet", "Call"}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "transfer_allow_death", Index: 0, Fields: []portable.Field{field("dest", TypeMultiAddress), field("value", TypeCompactBalance)}},
			{Name: "transfer_keep_alive", Index: 3, Fields: []portable.Field{field("dest", TypeMultiAddress), field("value", TypeCompactBalance)}},
		}}},
		portable.Type{ID: TypeSystemCall, Path: []string{"frame_system", "pallet", "Call"}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "remark", Index: 0, Fields: []portable.Field{field("remark", TypeBytes)}},
		}}},
		portable.Type{ID: TypeRuntimeCall, Path: []string{"runtime", "RuntimeCall"}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "System", Index: 0, Fields: []portable.Field{{Type: TypeSystemCall}}},
			{Name: "Balances", Index: 5, Fields: []portable.Field{{Type: TypeBalancesCall}}},
		}}},
		portable.Type{ID: TypeEra, Path: []string{"sp_runtime", "generic", "era", "Era"}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "Immortal", Index: 0},
			{Name: "Mortal1", Index: 1, Fields: []portable.Field{{Type: TypeU8}}},
		}}},
		portable.Type{ID: TypeCompactNonce, Def: portable.CompactDef{Elem: TypeU32}},
		portable.Type{ID: TypeChargeTransactionPayment, Path: []string{"pallet_transaction_payment", "ChargeTransactionPayment"}, Def: portable.CompositeDef{Fields: []portable.Field{{Type: TypeCompactBalance}}}},
		portable.Type{ID: TypeUncheckedExtrinsic, Path: []string{"sp_runtime", "generic", "unchecked_extrinsic", "UncheckedExtrinsic"}, Params: []portable.TypeParam{
			{Name: "Address", Type: ptr(TypeMultiAddress)},
			{Name: "Call", Type: ptr(TypeRuntimeCall)},
			{Name: "Signature", Type: ptr(TypeMultiSignature)},
			{Name: "Extra", Type: ptr(TypeExtra)},
		}, Def: portable.CompositeDef{Fields: []portable.Field{{Type: TypeBytes}}}},
		portable.Type{ID: TypeExtra, Def: portable.TupleDef{Elems: []uint32{TypeEra, TypeCompactNonce, TypeChargeTransactionPayment}}},
		portable.Type{ID: TypeAccountInfo, Path: []string{"frame_system", "AccountInfo"}, Def: portable.CompositeDef{Fields: []portable.Field{field("nonce", TypeU32), field("free", TypeU128)}}},
		portable.Type{ID: TypePairKey, Def: portable.TupleDef{Elems: []uint32{TypeU32, TypeAccountID}}},
		portable.Type{ID: TypeUnit, Def: portable.TupleDef{}},
	)
}

func modernPallets(withDocs bool) []metadata.Pallet {
	var docs []string
	if withDocs {
		docs = []string{"Balance transfers."}
	}
	return []metadata.Pallet{
		{
			Name: "System",
			Storage: &metadata.PalletStorage{Prefix: "System", Entries: []metadata.PalletStorageEntry{
				{Name: "Account", Modifier: metadata.Default, Hashers: []schema.Hasher{schema.Blake2_128Concat}, Key: ptr(TypeAccountID), Value: TypeAccountInfo, Default: make([]byte, 20)},
				{Name: "Number", Modifier: metadata.Default, Value: TypeU32, Default: []byte{0, 0, 0, 0}},
			}},
			Calls: ptr(TypeSystemCall),
			Index: 0,
		},
		{
			Name: "Timestamp",
			Storage: &metadata.PalletStorage{Prefix: "Timestamp", Entries: []metadata.PalletStorageEntry{
				{Name: "Now", Modifier: metadata.Default, Value: TypeU64, Default: make([]byte, 8)},
			}},
			Index: 3,
		},
		{
			Name: "Balances",
			Storage: &metadata.PalletStorage{Prefix: "Balances", Entries: []metadata.PalletStorageEntry{
				{Name: "Pairs", Modifier: metadata.Optional, Hashers: []schema.Hasher{schema.Twox64Concat, schema.Blake2_128}, Key: ptr(TypePairKey), Value: TypeU64, Default: []byte{}},
				{Name: "Broken", Modifier: metadata.Optional, Hashers: []schema.Hasher{schema.Twox64Concat, schema.Blake2_128, schema.Identity}, Key: ptr(TypePairKey), Value: TypeU64, Default: []byte{}},
			}},
			Calls: ptr(TypeBalancesCall),
			Index: 5,
			Docs:  docs,
		},
	}
}

func signedExtensions() []metadata.SignedExtension {
	return []metadata.SignedExtension{
		{Identifier: "CheckMortality", Type: TypeEra, AdditionalSigned: TypeUnit},
		{Identifier: "CheckNonce", Type: TypeCompactNonce, AdditionalSigned: TypeUnit},
		{Identifier: "ChargeTransactionPayment", Type: TypeChargeTransactionPayment, AdditionalSigned: TypeUnit},
	}
}

// V14 returns a runtime with System (index 0), Timestamp (index 3, no
// calls) and Balances (index 5).
func V14() *metadata.V14 {
	return &metadata.V14{
		Types:   PortableTypes(),
		Pallets: modernPallets(false),
		Extrinsic: metadata.ExtrinsicV14{
			Type:             TypeUncheckedExtrinsic,
			Version:          4,
			SignedExtensions: signedExtensions(),
		},
		RuntimeType: TypeUnit,
	}
}

// V15 returns the V14 runtime with explicit envelope types and one runtime API.
func V15() *metadata.V15 {
	return &metadata.V15{
		Types:   PortableTypes(),
		Pallets: modernPallets(true),
		Extrinsic: metadata.ExtrinsicV15{
			Version:          4,
			AddressType:      TypeMultiAddress,
			CallType:         TypeRuntimeCall,
			SignatureType:    TypeMultiSignature,
			ExtraType:        TypeExtra,
			SignedExtensions: signedExtensions(),
		},
		RuntimeType: TypeUnit,
		APIs: []metadata.RuntimeAPI{{
			Name: "Core",
			Methods: []metadata.RuntimeAPIMethod{{
				Name:   "version",
				Output: TypeU32,
			}},
		}},
		OuterEnums: metadata.OuterEnums{Call: TypeRuntimeCall, Event: TypeUnit, Error: TypeUnit},
		Custom:     []metadata.CustomValue{{Name: "foo", Type: TypeU8, Value: []byte{42}}},
	}
}
