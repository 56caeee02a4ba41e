// Package harness runs resolver scenarios described in YAML and checks the
// resulting trace and registry state.
//
// A scenario declares run files, the resolvers of one reduction pipeline
// (plain or dependent on a host resolver) and a flow of operations against
// them:
//
//	name: sample_rename
//	description: "A processing suffix renames the workspace and its monitors"
//	runs: [12345]
//	resolvers:
//	  - role: sample
//	    prefix: SR_
//	flow:
//	  - {resolver: sample, op: set, value: 12345}
//	  - {resolver: sample, op: get, expect: {result: SR_ABC012345}}
//	  - {resolver: sample, op: suffix, arg: RAW}
//	  - {resolver: sample, op: sync}
//	assertions:
//	  - type: registry_names
//	    names: [SR_ABC012345RAW, SR_ABC012345RAW_monitors]
//
// Each run starts from an empty in-memory SQLite registry, a fixed store
// session token and a step clock at zero, so two runs of the same scenario
// produce byte-identical snapshots. RunWithGolden compares that snapshot
// against testdata/golden/<name>.golden.
//
// # Operations
//
//	set             Set(value); null, "" and [] clear the identity
//	get             Get; result is the workspace name
//	name            CanonicalName
//	suffix          SetActionSuffix(arg)
//	component       SetComponent(arg)
//	sync            Synchronize(nil); result is the stored name
//	run_number      RunNumber; result is null when there is none
//	find            FindFile
//	ext             SetFileExtension(arg) when arg is set; result is FileExtension
//	monitors        Monitors; result is the companion name
//	exists          Exists
//	remove          Remove
//	clear_monitors  ClearCompanionMonitor
//	calibrate       Get, then ApplyCalibration from file arg; result is the tag
//	runs            Runs
//	identity        Identity as an object
//
// A value of {workspace: NAME} passes the registered workspace NAME as a
// materialized value; a name that is not registered is adopted as a new
// empty workspace.
package harness
