// Package ord implements the sat numbering scheme: the pure functions that
// map a block height to the subsidy it mints and the ordinal number of the
// first sat minted at that height.
package ord

// subsidyHalvingInterval is the number of blocks between subsidy halvings.
// Mathematically: subsidy(h) = baseSubsidy >> (h / subsidyHalvingInterval).
const subsidyHalvingInterval = 210000

// baseSubsidy is the subsidy amount for the first halving epoch, denominated
// in sats.
const baseSubsidy = 50 * 100000000

// totalHalvings is the halving epoch at and beyond which the subsidy is zero;
// used to short-circuit the cumulative-sat computation for very large
// heights instead of iterating every epoch.
const totalHalvings = 64

// Height is a block height, expressed in the sat numbering domain.
type Height uint64

// Subsidy returns the number of sats newly minted at this height.
//
// Equivalent to: baseSubsidy / 2^(height/subsidyHalvingInterval).
func (h Height) Subsidy() uint64 {
	epoch := uint64(h) / subsidyHalvingInterval
	if epoch >= totalHalvings {
		return 0
	}
	return baseSubsidy >> epoch
}

// StartingSat returns the ordinal number of the first sat minted at this
// height: the sum of the subsidies of every block before it.
func (h Height) StartingSat() uint64 {
	var total uint64
	epoch := uint64(h) / subsidyHalvingInterval
	for e := uint64(0); e < epoch && e < totalHalvings; e++ {
		epochSubsidy := uint64(baseSubsidy) >> e
		total += epochSubsidy * subsidyHalvingInterval
	}
	if epoch < totalHalvings {
		heightWithinEpoch := uint64(h) % subsidyHalvingInterval
		total += (baseSubsidy >> epoch) * heightWithinEpoch
	}
	return total
}
