package main

import (
	"EkgPlatform/internal/core/domain"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// publishCmd is the parent command for publishing integration events.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an integration event",
}

var publishAnalysisCmd = &cobra.Command{
	Use:   "analysis-completed",
	Short: "Publish an AnalysisCompletedEvent",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		id, _ := f.GetInt("result-id")
		patient, _ := f.GetString("patient")
		signal, _ := f.GetString("signal")
		heartRate, _ := f.GetFloat64("heart-rate")
		arrhythmia, _ := f.GetBool("arrhythmia")

		ev := domain.AnalysisCompletedEvent{
			IntegrationEvent: domain.NewIntegrationEvent(),
			AnalysisResultID: id,
			PatientCode:      patient,
			SignalReference:  signal,
			HeartRate:        heartRate,
			HasArrhythmia:    arrhythmia,
			AnalyzedAt:       time.Now().UTC(),
		}
		return publish(cmd, ev)
	},
}

var publishPatientCmd = &cobra.Command{
	Use:   "patient-created",
	Short: "Publish a PatientCreatedEvent",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		id, _ := f.GetInt("patient-id")
		code, _ := f.GetString("patient")
		contact, _ := f.GetString("contact")

		ev := domain.PatientCreatedEvent{
			IntegrationEvent: domain.NewIntegrationEvent(),
			PatientID:        id,
			PatientCode:      code,
			ContactInfo:      contact,
		}
		return publish(cmd, ev)
	},
}

var publishSignalCmd = &cobra.Command{
	Use:   "ekg-signal-processed",
	Short: "Publish an EkgSignalProcessedEvent",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		id, _ := f.GetInt("signal-id")
		patient, _ := f.GetString("patient")
		ref, _ := f.GetString("signal")

		ev := domain.EkgSignalProcessedEvent{
			IntegrationEvent: domain.NewIntegrationEvent(),
			SignalID:         id,
			PatientCode:      patient,
			SignalReference:  ref,
			ProcessedAt:      time.Now().UTC(),
		}
		return publish(cmd, ev)
	},
}

var publishBatchCmd = &cobra.Command{
	Use:   "batch-job-completed",
	Short: "Publish a BatchJobCompletedEvent",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		jobID, _ := f.GetString("job-id")
		jobType, _ := f.GetString("job-type")
		ok, _ := f.GetInt("succeeded")
		failed, _ := f.GetInt("failed")

		ev := domain.BatchJobCompletedEvent{
			IntegrationEvent: domain.NewIntegrationEvent(),
			JobID:            jobID,
			JobType:          jobType,
			TotalItems:       ok + failed,
			SuccessfulItems:  ok,
			FailedItems:      failed,
			CompletedAt:      time.Now().UTC(),
		}
		return publish(cmd, ev)
	},
}

func publish(cmd *cobra.Command, ev domain.Event) error {
	if err := application.Bus.Publish(cmd.Context(), ev); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), ev)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s %s\n", ev.EventName(), ev.ID())
	return nil
}

func init() {
	publishAnalysisCmd.Flags().Int("result-id", 0, "analysis result id")
	publishAnalysisCmd.Flags().String("patient", "", "patient code")
	publishAnalysisCmd.Flags().String("signal", "", "signal reference")
	publishAnalysisCmd.Flags().Float64("heart-rate", 0, "heart rate in bpm")
	publishAnalysisCmd.Flags().Bool("arrhythmia", false, "arrhythmia detected")

	publishPatientCmd.Flags().Int("patient-id", 0, "patient id")
	publishPatientCmd.Flags().String("patient", "", "patient code")
	publishPatientCmd.Flags().String("contact", "", "contact info")

	publishSignalCmd.Flags().Int("signal-id", 0, "signal id")
	publishSignalCmd.Flags().String("patient", "", "patient code")
	publishSignalCmd.Flags().String("signal", "", "signal reference")

	publishBatchCmd.Flags().String("job-id", "", "batch job id")
	publishBatchCmd.Flags().String("job-type", "analysis", "batch job type")
	publishBatchCmd.Flags().Int("succeeded", 0, "successful items")
	publishBatchCmd.Flags().Int("failed", 0, "failed items")

	publishCmd.AddCommand(publishAnalysisCmd)
	publishCmd.AddCommand(publishPatientCmd)
	publishCmd.AddCommand(publishSignalCmd)
	publishCmd.AddCommand(publishBatchCmd)
}
