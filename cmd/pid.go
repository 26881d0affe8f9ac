// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var getPIDCmd = &cobra.Command{
	Use:   "get_pid <group|all>",
	Short: "Read PID gains from the flight controller",
	Long: `Request the gains and integrator limit of one PID group, or of every group.

Groups: roll_pitch, yaw, sonar_alt_hold, baro_alt_hold, all`,
	Args: cobra.ExactArgs(1),
	RunE: runGetPID,
}

var setPIDCmd = &cobra.Command{
	Use:   "set_pid <group> <kp> <ki> <kd> <int_limit>",
	Short: "Write PID gains to the flight controller",
	Long: `Write the gains and integrator limit of one PID group, then read them back.

Values are signed 16-bit integers in the firmware's fixed-point units.

Groups: roll_pitch, yaw, sonar_alt_hold, baro_alt_hold`,
	Args: cobra.ExactArgs(5),
	RunE: runSetPID,
}

func init() {
	rootCmd.AddCommand(getPIDCmd)
	rootCmd.AddCommand(setPIDCmd)
}

func runGetPID(cmd *cobra.Command, args []string) error {
	groups, err := parsePIDGroups(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(logger)
	if err != nil {
		return err
	}
	s.start()
	defer s.close()

	for _, group := range groups {
		pid, err := readPID(s, group)
		if err != nil {
			return err
		}
		fmt.Printf("%-15s %s\n", group.String()+":", lpfc.FormatPID(pid))
	}
	return nil
}

func runSetPID(cmd *cobra.Command, args []string) error {
	group, ok := lpfc.ParsePIDGroup(args[0])
	if !ok {
		return fmt.Errorf("unknown PID group %q", args[0])
	}
	pid, err := parsePID(args[1:])
	if err != nil {
		return err
	}

	s, err := openSession(logger)
	if err != nil {
		return err
	}
	s.start()
	defer s.close()

	if err := s.send(lpfc.NewSetPID(group, pid)); err != nil {
		return err
	}
	got, err := readPID(s, group)
	if err != nil {
		return err
	}

	fmt.Printf("%-15s %s\n", group.String()+":", lpfc.FormatPID(got))
	if got != pid {
		return fmt.Errorf("read back differs from written values (%s)", lpfc.FormatPID(pid))
	}
	return nil
}

// readPID requests one group's values
func readPID(s *session, group lpfc.PIDGroup) (lpfc.PID, error) {
	ev, err := s.request(lpfc.NewGetPID(group), group.GetCommand())
	if err != nil {
		return lpfc.PID{}, err
	}
	return ev.(*lpfc.PIDEvent).PID, nil
}

// parsePIDGroups accepts a group name or "all"
func parsePIDGroups(arg string) ([]lpfc.PIDGroup, error) {
	if arg == "all" {
		return lpfc.PIDGroups, nil
	}
	group, ok := lpfc.ParsePIDGroup(arg)
	if !ok {
		return nil, fmt.Errorf("unknown PID group %q", arg)
	}
	return []lpfc.PIDGroup{group}, nil
}

// parsePID parses "kp ki kd int_limit"
func parsePID(fields []string) (lpfc.PID, error) {
	if len(fields) != 4 {
		return lpfc.PID{}, fmt.Errorf("expected 4 values (kp ki kd int_limit), got %d", len(fields))
	}

	var v [4]int16
	for i, f := range fields {
		n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return lpfc.PID{}, fmt.Errorf("value %q: must be an integer in [-32768, 32767]", f)
		}
		v[i] = int16(n)
	}
	return lpfc.PID{Kp: v[0], Ki: v[1], Kd: v[2], IntLimit: v[3]}, nil
}
