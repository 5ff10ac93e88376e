package training

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"drink-detector/internal/models"
)

// StratifiedSplit partitions window indexes into train and test sets with
// every class present on both sides. The test size is ceil(fraction*n),
// shared between classes in proportion to their size by largest remainder.
// The shuffle is driven by seed alone, so equal inputs give equal splits.
func StratifiedSplit(labels []int, fraction float64, seed int64) (train, test []int, err error) {
	if len(labels) == 0 {
		return nil, nil, &models.InsufficientDataError{Reason: "no labeled windows"}
	}
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %g", fraction)
	}

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	if len(classes) < 2 {
		return nil, nil, &models.InsufficientDataError{
			Reason: fmt.Sprintf("only class %d present in %d windows", classes[0], len(labels)),
		}
	}
	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, nil, &models.InsufficientDataError{
				Reason: fmt.Sprintf("class %d has a single window and cannot appear in both partitions", c),
			}
		}
	}

	alloc := allocate(classes, byClass, len(labels), int(math.Ceil(fraction*float64(len(labels))-1e-9)))

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	for _, c := range classes {
		members := slices.Clone(byClass[c])
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		test = append(test, members[:alloc[c]]...)
		train = append(train, members[alloc[c]:]...)
	}

	slices.Sort(train)
	slices.Sort(test)
	return train, test, nil
}

// allocate spreads nTest over classes by largest remainder and then makes
// sure each class keeps at least one window on each side
func allocate(classes []int, byClass map[int][]int, n, nTest int) map[int]int {
	type share struct {
		class int
		rem   float64
	}

	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	given := 0
	for _, c := range classes {
		exact := float64(len(byClass[c])) * float64(nTest) / float64(n)
		alloc[c] = int(math.Floor(exact))
		given += alloc[c]
		shares = append(shares, share{class: c, rem: exact - math.Floor(exact)})
	}

	sort.SliceStable(shares, func(i, j int) bool { return shares[i].rem > shares[j].rem })
	for i := 0; given < nTest; i = (i + 1) % len(shares) {
		alloc[shares[i].class]++
		given++
	}

	for _, c := range classes {
		alloc[c] = min(max(alloc[c], 1), len(byClass[c])-1)
	}
	return alloc
}
