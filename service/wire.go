package service

import (
	"Orbit/dao/cache"
	"Orbit/pkg/contribution"
	"Orbit/pkg/esign"
	"Orbit/pkg/labels"

	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(
	NewPointService,
	wire.Bind(new(IPointService), new(*PointService)),
	wire.Bind(new(BalanceCache), new(*cache.BalanceStorage)),

	NewWithdrawalService,
	wire.Bind(new(IWithdrawalService), new(*WithdrawalService)),
	wire.Bind(new(ContractSigner), new(*esign.Client)),

	NewAllocationService,
	wire.Bind(new(IAllocationService), new(*AllocationService)),
	wire.Bind(new(TagEvaluator), new(*labels.Evaluator)),
	wire.Bind(new(ContributionSource), new(*contribution.Client)),

	NewClaimService,
	wire.Bind(new(IClaimService), new(*ClaimService)),
)
