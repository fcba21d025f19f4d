// Package config manages variant presets for Connect-N sessions.
//
// A variant fixes the board width and height, the run length needed to win
// and the number of players. Presets are JSON files in a directory:
//
//	{
//	  "name": "connect5",
//	  "description": "Five in a row on a 9x7 board",
//	  "connect": 5,
//	  "players": 2,
//	  "width": 9,
//	  "height": 7
//	}
//
// The file name (without .json) is used when "name" is omitted. Files that
// fail validation are skipped. The classic 7x6 connect-four variant is
// built in, so a server runs without any preset directory.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	v, err := manager.LoadVariant("connect5")
//	defaultVariant := manager.GetDefault()
//	all := manager.ListVariants()
package config
