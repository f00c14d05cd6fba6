package leveling

// MaxLevel is the highest level a character can reach.
const MaxLevel = 30

const (
	baseRequirement      = 100
	requirementIncrement = 50
)

// RequirementForLevel is the experience needed to go from level to level+1.
func RequirementForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(baseRequirement + requirementIncrement*(level-1))
}

// TotalExperienceForLevel is the experience at which level begins. Level 1
// begins at zero.
func TotalExperienceForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	n := int64(level - 1)
	// Sum of an arithmetic series: n terms starting at 100, step 50.
	return n*baseRequirement + requirementIncrement*n*(n-1)/2
}

// CalculateLevel returns the level reached with xp total experience.
func CalculateLevel(xp int64) int {
	if xp <= 0 {
		return 1
	}
	level := 1
	for level < MaxLevel && TotalExperienceForLevel(level+1) <= xp {
		level++
	}
	return level
}
