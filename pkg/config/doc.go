/*
Package config builds a frozen Config for opening a Strata database:
path, durability mode and its sub-options, shard count, and the
ephemeral/temp flags (spec.md §9 "Configuration").

# Usage

Functional-options builder, so callers can compose options without
filling in every field:

	cfg, err := config.New(
		config.WithPath("/var/lib/strata/mydb"),
		config.WithDurability(config.DurabilityStrict, 0, 0),
		config.WithShardCount(64),
	)

Or load from YAML (gopkg.in/yaml.v3), same library the teacher uses
for on-disk declarative config:

	cfg, err := config.LoadFile("strata.yaml")

Ephemeral databases skip path entirely; New rejects WithPath combined
with WithEphemeral.
*/
package config
