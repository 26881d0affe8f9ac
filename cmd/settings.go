// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var getSettingsCmd = &cobra.Command{
	Use:   "get_settings",
	Short: "Read tuning settings from the flight controller",
	RunE:  runGetSettings,
}

var setSettingsCmd = &cobra.Command{
	Use:   "set_settings",
	Short: "Write tuning settings to the flight controller",
	Long: `Change one or more tuning settings.

The current settings are read first, so only the fields given as flags
change. The result is read back and printed.

Example:
  flightlink set_settings --port /dev/rfcomm0 --angle-kp 500 --angle-max-inc 35`,
	RunE: runSetSettings,
}

func init() {
	rootCmd.AddCommand(getSettingsCmd)
	rootCmd.AddCommand(setSettingsCmd)

	addSettingsFlags(setSettingsCmd.Flags())
}

func addSettingsFlags(f *pflag.FlagSet) {
	f.Int16("angle-kp", 0, "Angle mode proportional gain")
	f.Int16("heading-kp", 0, "Heading hold proportional gain")
	f.Uint8("angle-max-inc", 0, "Maximum tilt in angle mode (degrees)")
	f.Uint8("angle-max-inc-sonar", 0, "Maximum tilt while holding sonar altitude (degrees)")
	f.Int16("stick-scaling-roll-pitch", 0, "Roll/pitch stick scaling")
	f.Int16("stick-scaling-yaw", 0, "Yaw stick scaling")
}

func runGetSettings(cmd *cobra.Command, args []string) error {
	s, err := openSession(logger)
	if err != nil {
		return err
	}
	s.start()
	defer s.close()

	settings, err := readSettings(s)
	if err != nil {
		return err
	}
	fmt.Print(settingsTable(settings))
	return nil
}

func runSetSettings(cmd *cobra.Command, args []string) error {
	if !anySettingsFlag(cmd.Flags()) {
		return fmt.Errorf("no settings given; see --help")
	}

	s, err := openSession(logger)
	if err != nil {
		return err
	}
	s.start()
	defer s.close()

	current, err := readSettings(s)
	if err != nil {
		return err
	}
	want, err := applySettingsFlags(current, cmd.Flags())
	if err != nil {
		return err
	}
	if anomalies := lpfc.ValidateEvent(&lpfc.SettingsEvent{Settings: want}); len(anomalies) > 0 {
		for _, a := range anomalies {
			fmt.Printf("warning: %s\n", a.Message)
		}
	}

	if err := s.send(lpfc.NewSetSettings(want)); err != nil {
		return err
	}
	got, err := readSettings(s)
	if err != nil {
		return err
	}

	fmt.Print(settingsTable(got))
	if got != want {
		return fmt.Errorf("read back differs from written settings")
	}
	return nil
}

func readSettings(s *session) (lpfc.Settings, error) {
	ev, err := s.request(lpfc.NewGetSettings(), lpfc.CmdGetSettings)
	if err != nil {
		return lpfc.Settings{}, err
	}
	return ev.(*lpfc.SettingsEvent).Settings, nil
}

var settingsFlags = []string{
	"angle-kp", "heading-kp", "angle-max-inc", "angle-max-inc-sonar",
	"stick-scaling-roll-pitch", "stick-scaling-yaw",
}

func anySettingsFlag(flags *pflag.FlagSet) bool {
	for _, name := range settingsFlags {
		if flags.Changed(name) {
			return true
		}
	}
	return false
}

// applySettingsFlags overrides the fields whose flags were set
func applySettingsFlags(base lpfc.Settings, flags *pflag.FlagSet) (lpfc.Settings, error) {
	out := base
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("angle-kp", func() (e error) { out.AngleKp, e = flags.GetInt16("angle-kp"); return })
	set("heading-kp", func() (e error) { out.HeadingKp, e = flags.GetInt16("heading-kp"); return })
	set("angle-max-inc", func() (e error) { out.AngleMaxInc, e = flags.GetUint8("angle-max-inc"); return })
	set("angle-max-inc-sonar", func() (e error) { out.AngleMaxIncSonar, e = flags.GetUint8("angle-max-inc-sonar"); return })
	set("stick-scaling-roll-pitch", func() (e error) {
		out.StickScalingRollPitch, e = flags.GetInt16("stick-scaling-roll-pitch")
		return
	})
	set("stick-scaling-yaw", func() (e error) { out.StickScalingYaw, e = flags.GetInt16("stick-scaling-yaw"); return })

	return out, err
}

func settingsTable(s lpfc.Settings) string {
	return fmt.Sprintf(`Angle Kp:                 %d
Heading Kp:               %d
Angle Max Inc:            %d°
Angle Max Inc (sonar):    %d°
Stick Scaling Roll/Pitch: %d
Stick Scaling Yaw:        %d
`, s.AngleKp, s.HeadingKp, s.AngleMaxInc, s.AngleMaxIncSonar, s.StickScalingRollPitch, s.StickScalingYaw)
}
