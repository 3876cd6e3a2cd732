package logparse

import "strings"

// Class is a character class as understood by the roster tooling.
type Class string

const (
	ClassUnknown      Class = "Unknown"
	ClassWarrior      Class = "Warrior"
	ClassCleric       Class = "Cleric"
	ClassPaladin      Class = "Paladin"
	ClassRanger       Class = "Ranger"
	ClassShadowKnight Class = "Shadow Knight"
	ClassDruid        Class = "Druid"
	ClassMonk         Class = "Monk"
	ClassBard         Class = "Bard"
	ClassRogue        Class = "Rogue"
	ClassShaman       Class = "Shaman"
	ClassNecromancer  Class = "Necromancer"
	ClassWizard       Class = "Wizard"
	ClassMagician     Class = "Magician"
	ClassEnchanter    Class = "Enchanter"
	ClassBeastlord    Class = "Beastlord"
	ClassBerserker    Class = "Berserker"
)

// classAliases keys are lowercased with spaces removed.
var classAliases = map[string]Class{
	"warrior": ClassWarrior, "war": ClassWarrior, "warlord": ClassWarrior, "champion": ClassWarrior,
	"cleric": ClassCleric, "clr": ClassCleric, "vicar": ClassCleric, "templar": ClassCleric,
	"paladin": ClassPaladin, "pal": ClassPaladin, "cavalier": ClassPaladin, "knight": ClassPaladin,
	"ranger": ClassRanger, "rng": ClassRanger, "pathfinder": ClassRanger, "outrider": ClassRanger,
	"shadowknight": ClassShadowKnight, "shd": ClassShadowKnight, "sk": ClassShadowKnight, "reaver": ClassShadowKnight, "revenant": ClassShadowKnight,
	"druid": ClassDruid, "dru": ClassDruid, "wanderer": ClassDruid, "preserver": ClassDruid,
	"monk": ClassMonk, "mnk": ClassMonk, "disciple": ClassMonk, "master": ClassMonk,
	"bard": ClassBard, "brd": ClassBard, "minstrel": ClassBard, "troubadour": ClassBard,
	"rogue": ClassRogue, "rog": ClassRogue, "rake": ClassRogue, "blackguard": ClassRogue,
	"shaman": ClassShaman, "shm": ClassShaman, "mystic": ClassShaman, "luminary": ClassShaman,
	"necromancer": ClassNecromancer, "nec": ClassNecromancer, "heretic": ClassNecromancer, "defiler": ClassNecromancer,
	"wizard": ClassWizard, "wiz": ClassWizard, "channeler": ClassWizard, "evoker": ClassWizard,
	"magician": ClassMagician, "mag": ClassMagician, "mage": ClassMagician, "elementalist": ClassMagician, "conjurer": ClassMagician,
	"enchanter": ClassEnchanter, "enc": ClassEnchanter, "illusionist": ClassEnchanter, "beguiler": ClassEnchanter,
	"beastlord": ClassBeastlord, "bst": ClassBeastlord, "primalist": ClassBeastlord, "animist": ClassBeastlord,
	"berserker": ClassBerserker, "ber": ClassBerserker, "brawler": ClassBerserker, "vehement": ClassBerserker,
}

// ResolveClass maps a class name, abbreviation or level title onto a Class.
// Anything unrecognised resolves to ClassUnknown.
func ResolveClass(raw string) Class {
	key := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if c, ok := classAliases[key]; ok {
		return c
	}
	return ClassUnknown
}
